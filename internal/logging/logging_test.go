package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupWriter_Levels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	l := SetupWriter(&buf, false)
	l.Debug().Msg("hidden")
	l.Info().Str("component", "test").Msg("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(buf.String(), "shown") || !strings.Contains(buf.String(), "component=") {
		t.Errorf("info line missing: %q", buf.String())
	}

	buf.Reset()
	l = SetupWriter(&buf, true)
	l.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug line missing: %q", buf.String())
	}
}
