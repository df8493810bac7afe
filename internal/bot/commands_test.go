package bot

import (
	"reflect"
	"testing"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.5", 0.5, false},
		{" 1.25 ", 1.25, false},
		{"0,75", 0.75, false},
		{"2%", 2, false},
		{"0", 0, false},
		{"", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}
	for _, tt := range tests {
		got, err := parseThreshold(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseThreshold(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"60", 60, false},
		{"10", 10, false},
		{"9", 0, true},
		{"0", 0, true},
		{"1.5", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseInterval(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseInterval(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"BTC,ETH", []string{"BTC", "ETH"}},
		{"btc, eth ,sol", []string{"BTC", "ETH", "SOL"}},
		{"btc eth btc", []string{"BTC", "ETH"}},
		{" , ", []string{}},
	}
	for _, tt := range tests {
		if got := parseTokens(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseTokens(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseExchanges(t *testing.T) {
	ok, unknown := parseExchanges("Binance, okx,mtgox , kraken")
	if !reflect.DeepEqual(ok, []string{"binance", "okx", "kraken"}) {
		t.Errorf("ok = %v", ok)
	}
	if !reflect.DeepEqual(unknown, []string{"mtgox"}) {
		t.Errorf("unknown = %v", unknown)
	}

	ok, _ = parseExchanges("")
	if len(ok) != 0 {
		t.Errorf("empty input gave %v", ok)
	}
}
