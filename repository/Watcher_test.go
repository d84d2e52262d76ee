package repository

import (
	"context"
	"testing"
	"time"

	"coopStore/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestFileWatcherReportsForeignWritesOnly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	mine, err := NewFileCartRepository(dir, zap.NewNop())
	require.NoError(t, err)
	theirs, err := NewFileCartRepository(dir, zap.NewNop())
	require.NoError(t, err)

	bus := events.NewBus()
	got := &collector{}
	bus.Subscribe(events.External, got.add)
	bus.Subscribe(events.Local, func(events.Event) { t.Error("watcher must not emit local events") })

	fw, err := NewFileWatcher(mine, bus, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	defer fw.Stop()

	require.NoError(t, mine.SetCart("cart", `{"mine":true}`))
	require.NoError(t, theirs.SetCart("cart", `{"theirs":true}`))
	require.NoError(t, theirs.SetCart("marker", `{}`))

	require.Eventually(t, func() bool { return got.hasKey("marker") }, 5*time.Second, 10*time.Millisecond)

	var cartValues []string
	for _, ev := range got.snapshot() {
		assert.Equal(t, events.StorageEvent, ev.Name)
		assert.Equal(t, events.External, ev.Channel)
		if ev.Key == "cart" {
			cartValues = append(cartValues, ev.NewValue)
		}
	}
	assert.NotContains(t, cartValues, `{"mine":true}`)
	assert.Contains(t, cartValues, `{"theirs":true}`)
}

func TestFileWatcherStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo, err := NewFileCartRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	fw, err := NewFileWatcher(repo, events.NewBus(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, fw.Start(context.Background()))
	require.NoError(t, fw.Start(context.Background()))
	fw.Stop()
	fw.Stop()
}

func TestFileWatcherStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo, err := NewFileCartRepository(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	fw, err := NewFileWatcher(repo, events.NewBus(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	cancel()
	fw.Stop()
}

func TestNoopWatcher(t *testing.T) {
	var w Watcher = NoopWatcher{}
	assert.NoError(t, w.Start(context.Background()))
	w.Stop()
}
