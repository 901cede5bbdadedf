package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/eventform/internal/config"
	"github.com/matthewbaird/eventform/internal/dataset"
	"github.com/matthewbaird/eventform/internal/form"
	"github.com/matthewbaird/eventform/internal/loader"
)

type offlineSource struct{}

func (offlineSource) Load(_ context.Context, r loader.Resource) ([]byte, error) {
	return nil, &loader.DataSourceExhaustedError{Resource: r}
}

func newManager(t *testing.T, maxAge, idle time.Duration) (*Manager, *time.Time) {
	t.Helper()
	catalog := dataset.NewCatalog(offlineSource{}, nil)
	factory := func(_ context.Context, id string) (*form.Form, error) {
		return form.New(id, config.Default().Form, form.Deps{Catalog: catalog, Logger: zerolog.Nop()})
	}
	m := NewManager(factory, maxAge, idle, zerolog.Nop())
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newManager(t, time.Hour, 10*time.Minute)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err, "offline datasets degrade the form, not the session")
	require.NotNil(t, s.Form)
	assert.Equal(t, s.ID, s.Form.ID())

	got := m.Get(ctx, s.ID)
	assert.Same(t, s, got)
	assert.Nil(t, m.Get(ctx, "missing"))
	assert.Equal(t, 1, m.Len())
}

func TestManager_IdleSessionsExpire(t *testing.T) {
	m, now := newManager(t, time.Hour, 10*time.Minute)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	*now = now.Add(9 * time.Minute)
	require.NotNil(t, m.Get(ctx, s.ID), "activity refreshes the idle timer")

	*now = now.Add(9 * time.Minute)
	require.NotNil(t, m.Get(ctx, s.ID))

	*now = now.Add(11 * time.Minute)
	assert.Nil(t, m.Get(ctx, s.ID))
	assert.Equal(t, 0, m.Len())
}

func TestManager_MaxAge(t *testing.T) {
	m, now := newManager(t, time.Hour, 0)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	*now = now.Add(61 * time.Minute)
	assert.Nil(t, m.Get(ctx, s.ID))
}

func TestManager_Cleanup(t *testing.T) {
	m, now := newManager(t, time.Hour, 10*time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, m.Cleanup(ctx))
	*now = now.Add(15 * time.Minute)
	assert.Equal(t, 3, m.Cleanup(ctx))
	assert.Equal(t, 0, m.Len())
}

func TestManager_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(func(context.Context, string) (*form.Form, error) { return nil, boom }, 0, 0, zerolog.Nop())

	_, err := m.Create(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Len())
}

func TestManager_Remove(t *testing.T) {
	m, _ := newManager(t, 0, 0)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	assert.True(t, m.Remove(ctx, s.ID))
	assert.False(t, m.Remove(ctx, s.ID))
}
