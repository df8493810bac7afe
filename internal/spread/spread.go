package spread

import (
	"sort"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

// Entry is one exchange's USD price.
type Entry struct {
	Exchange market.Exchange
	Price    float64
}

// Report summarizes a token's prices across exchanges. When NoData is set the
// other fields are zero.
type Report struct {
	NoData    bool
	Min       Entry
	Max       Entry
	SpreadAbs float64
	// SpreadPct is SpreadAbs relative to Min.Price, in percent. Zero when Min.Price is zero.
	SpreadPct float64
	// Table is every entry in ascending price order.
	Table []Entry
}

// BestBuy is the cheapest venue.
func (r Report) BestBuy() Entry { return r.Min }

// BestSell is the most expensive venue.
func (r Report) BestSell() Entry { return r.Max }

// Exceeds reports whether the spread reached thresholdPct.
func (r Report) Exceeds(thresholdPct float64) bool {
	return !r.NoData && r.SpreadPct >= thresholdPct
}

// Compute builds a Report from a price map. The table is ascending by price;
// entries with equal prices are ordered by ascending exchange id, so the same
// map always yields the same table, Min and Max.
func Compute(pm market.PriceMap) Report {
	if len(pm) == 0 {
		return Report{NoData: true, Table: []Entry{}}
	}

	table := make([]Entry, 0, len(pm))
	for ex, p := range pm {
		table = append(table, Entry{Exchange: ex, Price: p})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Exchange < table[j].Exchange })
	sort.SliceStable(table, func(i, j int) bool { return table[i].Price < table[j].Price })

	lo, hi := table[0], table[len(table)-1]
	r := Report{
		Min:       lo,
		Max:       hi,
		SpreadAbs: hi.Price - lo.Price,
		Table:     table,
	}
	if lo.Price != 0 {
		r.SpreadPct = r.SpreadAbs / lo.Price * 100
	}
	return r
}

func ComputeAll(prices map[market.Token]market.PriceMap) map[market.Token]Report {
	out := make(map[market.Token]Report, len(prices))
	for tok, pm := range prices {
		out[tok] = Compute(pm)
	}
	return out
}
