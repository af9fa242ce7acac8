package notify

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullstride/archivist/internal/config"
)

type countingReloader struct {
	calls atomic.Int32
}

func (r *countingReloader) ForceReload(ctx context.Context) error {
	r.calls.Add(1)
	return nil
}

func TestPullWatcher_MatchArtifact_ExactAndPrefix(t *testing.T) {
	p := &PullWatcher{artifactPaths: []string{"bm25.gob", "vectors"}}

	require.Equal(t, "bm25.gob", p.matchArtifact("bm25.gob"))
	require.Equal(t, "vectors", p.matchArtifact(filepath.Join("vectors", "shard-0.bin")))
	require.Equal(t, "", p.matchArtifact("metadata.db"))
}

func TestPullWatcher_ShouldTrigger_CooldownSuppressesBursts(t *testing.T) {
	p := &PullWatcher{
		cfg:         config.NotifyConfig{CooldownPeriod: 50 * time.Millisecond},
		lastTrigger: make(map[string]time.Time),
	}

	require.True(t, p.shouldTrigger("bm25.gob"))
	require.False(t, p.shouldTrigger("bm25.gob"), "second trigger within cooldown must be suppressed")

	time.Sleep(60 * time.Millisecond)
	require.True(t, p.shouldTrigger("bm25.gob"), "trigger after cooldown elapses must succeed")
}

func TestPullWatcher_ShouldTrigger_IndependentPerArtifact(t *testing.T) {
	p := &PullWatcher{
		cfg:         config.NotifyConfig{CooldownPeriod: time.Minute},
		lastTrigger: make(map[string]time.Time),
	}

	require.True(t, p.shouldTrigger("bm25.gob"))
	require.True(t, p.shouldTrigger("vectors"), "a different artifact's cooldown must not be affected by bm25.gob's")
}

func TestPullWatcher_Run_ChangeToArtifactTriggersReload(t *testing.T) {
	dir := t.TempDir()
	reloader := &countingReloader{}

	p, err := NewPullWatcher(dir, []string{"bm25.gob"}, reloader, config.NotifyConfig{CooldownPeriod: time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = p.Run(ctx) }()
	defer func() { _ = p.Stop() }()

	time.Sleep(100 * time.Millisecond) // let the watcher finish initial setup

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bm25.gob"), []byte("data"), 0o644))

	require.Eventually(t, func() bool {
		return reloader.calls.Load() > 0
	}, 3*time.Second, 20*time.Millisecond)
}
