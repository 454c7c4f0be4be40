// Package markets holds the read-only reference list of markets and their
// characteristic vectors. A Table is built once and shared; nothing mutates
// it after construction, so concurrent readers need no locking.
package markets

import (
	"fmt"
	"sort"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

// CharacteristicNames labels the columns of every characteristics vector in
// the default table.
var CharacteristicNames = []string{
	"tv_households_m",
	"median_income_k",
	"broadband_pct",
	"ecommerce_index",
}

// Table is an immutable market reference list.
type Table struct {
	markets []experiment.Market
	index   map[string]int
}

// NewTable validates and copies the markets. IDs must be unique and every
// characteristics vector must have the same non-zero length.
func NewTable(ms []experiment.Market) (*Table, error) {
	if len(ms) == 0 {
		return nil, errors.Configuration("markets", "markets", "market table is empty")
	}
	t := &Table{
		markets: make([]experiment.Market, len(ms)),
		index:   make(map[string]int, len(ms)),
	}
	dim := len(ms[0].Characteristics)
	for i, m := range ms {
		if m.ID == "" {
			return nil, errors.Configuration("markets", fmt.Sprintf("markets[%d].id", i), "market id is empty")
		}
		if _, dup := t.index[m.ID]; dup {
			return nil, errors.Configuration("markets", fmt.Sprintf("markets[%d].id", i), fmt.Sprintf("duplicate market id %q", m.ID))
		}
		if dim == 0 || len(m.Characteristics) != dim {
			return nil, errors.Configuration("markets", fmt.Sprintf("markets[%d].characteristics", i),
				fmt.Sprintf("expected %d characteristics, got %d", dim, len(m.Characteristics)))
		}
		t.markets[i] = experiment.Market{
			ID:              m.ID,
			Name:            m.Name,
			Characteristics: append([]float64(nil), m.Characteristics...),
		}
		t.index[m.ID] = i
	}
	return t, nil
}

// Get returns a copy of the market with the given id.
func (t *Table) Get(id string) (experiment.Market, bool) {
	i, ok := t.index[id]
	if !ok {
		return experiment.Market{}, false
	}
	return copyMarket(t.markets[i]), true
}

// Lookup resolves ids in order, failing on the first unknown one.
func (t *Table) Lookup(ids []string) ([]experiment.Market, error) {
	out := make([]experiment.Market, 0, len(ids))
	for _, id := range ids {
		m, ok := t.Get(id)
		if !ok {
			return nil, errors.Configuration("markets", "market", fmt.Sprintf("unknown market %q", id))
		}
		out = append(out, m)
	}
	return out, nil
}

// Has reports whether the id is in the table.
func (t *Table) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// All returns copies of every market in table order.
func (t *Table) All() []experiment.Market {
	out := make([]experiment.Market, len(t.markets))
	for i, m := range t.markets {
		out[i] = copyMarket(m)
	}
	return out
}

// Others returns every market except the given one, in table order.
func (t *Table) Others(id string) []experiment.Market {
	out := make([]experiment.Market, 0, len(t.markets))
	for _, m := range t.markets {
		if m.ID != id {
			out = append(out, copyMarket(m))
		}
	}
	return out
}

// IDs returns the sorted market ids.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.markets))
	for _, m := range t.markets {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of markets.
func (t *Table) Len() int { return len(t.markets) }

func copyMarket(m experiment.Market) experiment.Market {
	m.Characteristics = append([]float64(nil), m.Characteristics...)
	return m
}
