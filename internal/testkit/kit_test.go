package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geolift/domain/core"
	"geolift/domain/experiment"
	"geolift/internal/errors"
	"geolift/internal/generator"
	"geolift/ports"
)

func TestFixturesAreValid(t *testing.T) {
	spec := Spec(WithControls("bravo", "charlie"))
	require.NoError(t, spec.Validate())
	ds, err := generator.Generate(spec, 1, SmallTable())
	require.NoError(t, err)
	assert.Equal(t, []string{"bravo", "charlie"}, ds.ControlOrder)

	run := SampleRun()
	require.NoError(t, run.Spec.Validate())
	assert.Len(t, run.Daily, 3)
}

func TestInMemoryRunStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRunStore()

	a := SampleRun()
	b := SampleRun()
	b.ID = core.NewRunID()
	b.CreatedAt = FixedTime.Add(1)
	b.Decision.Recommendation = experiment.DoNotShip
	require.NoError(t, store.SaveRun(ctx, a))
	require.NoError(t, store.SaveRun(ctx, b))

	got, err := store.GetRun(ctx, a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = store.GetRun(ctx, "missing")
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.ErrorIs(t, err, core.ErrRunNotFound)

	all, err := store.ListRuns(ctx, ports.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "newest first")

	ships, err := store.ListRuns(ctx, ports.RunFilter{Recommendation: experiment.Ship})
	require.NoError(t, err)
	require.Len(t, ships, 1)
	assert.Equal(t, a.ID, ships[0].ID)

	paged, err := store.ListRuns(ctx, ports.RunFilter{Offset: 1, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	batch := SampleBatch()
	require.NoError(t, store.SaveBatch(ctx, batch))
	gotBatch, err := store.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, gotBatch.Total)
}
