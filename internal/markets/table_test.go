package markets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geolift/domain/experiment"
	"geolift/internal/errors"
)

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()
	assert.Equal(t, 20, table.Len())

	m, ok := table.Get("chicago")
	require.True(t, ok)
	assert.Equal(t, "Chicago, IL", m.Name)
	assert.Len(t, m.Characteristics, len(CharacteristicNames))

	assert.Len(t, table.Others("chicago"), 19)
	assert.True(t, table.Has("austin"))
	assert.False(t, table.Has("gotham"))
}

func TestTableIsReadOnly(t *testing.T) {
	table := DefaultTable()
	m, _ := table.Get("boston")
	m.Characteristics[0] = -1

	again, _ := table.Get("boston")
	assert.NotEqual(t, -1.0, again.Characteristics[0])

	all := table.All()
	all[0].Characteristics[0] = -1
	first := table.All()[0]
	assert.NotEqual(t, -1.0, first.Characteristics[0])
}

func TestNewTableRejectsBadInput(t *testing.T) {
	_, err := NewTable(nil)
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))

	_, err = NewTable([]experiment.Market{
		{ID: "a", Characteristics: []float64{1, 2}},
		{ID: "a", Characteristics: []float64{1, 2}},
	})
	assert.Error(t, err)

	_, err = NewTable([]experiment.Market{
		{ID: "a", Characteristics: []float64{1, 2}},
		{ID: "b", Characteristics: []float64{1}},
	})
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	table := DefaultTable()
	ms, err := table.Lookup([]string{"denver", "seattle"})
	require.NoError(t, err)
	assert.Equal(t, "denver", ms[0].ID)

	_, err = table.Lookup([]string{"denver", "atlantis"})
	assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
}
