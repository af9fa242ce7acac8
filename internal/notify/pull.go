// Package notify implements the pull side of the Update Notifier (C10): an
// independent watcher over the persisted index artifacts that triggers a
// query engine reload when another process has checkpointed new state.
package notify

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nullstride/archivist/internal/config"
	"github.com/nullstride/archivist/internal/watcher"
)

// Reloader is the subset of pkg/searcher.Engine that PullWatcher drives.
type Reloader interface {
	ForceReload(ctx context.Context) error
}

// PullWatcher observes the BM25 index file and the vector store directory
// for out-of-process writes (e.g. a checkpoint from a sibling indexer
// process sharing the same DataDir) and calls ForceReload when either
// changes, rate-limited per artifact by cfg.CooldownPeriod to absorb
// bursts of writes from a single checkpoint.
type PullWatcher struct {
	w        *watcher.HybridWatcher
	dir      string
	reloader Reloader
	cfg      config.NotifyConfig
	logger   *slog.Logger

	mu          sync.Mutex
	lastTrigger map[string]time.Time

	artifactPaths []string // paths/prefixes relative to dir that matter
}

// NewPullWatcher builds a watcher over dir (the directory holding the
// checkpointed artifacts). artifactPaths are paths or directory prefixes,
// relative to dir, that should trigger a reload when changed; any other
// file under dir is ignored.
func NewPullWatcher(dir string, artifactPaths []string, reloader Reloader, cfg config.NotifyConfig, logger *slog.Logger) (*PullWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 5 * time.Second
	}

	hw, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return nil, err
	}

	return &PullWatcher{
		w:             hw,
		dir:           dir,
		reloader:      reloader,
		cfg:           cfg,
		logger:        logger,
		lastTrigger:   make(map[string]time.Time),
		artifactPaths: artifactPaths,
	}, nil
}

// Run starts the underlying watcher and blocks, dispatching reloads until
// ctx is cancelled or Stop is called. Intended to run in its own goroutine.
func (p *PullWatcher) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case events, ok := <-p.w.Events():
				if !ok {
					return
				}
				p.handle(ctx, events)
			case err, ok := <-p.w.Errors():
				if !ok {
					return
				}
				p.logger.Warn("notify: watcher error", "err", err)
			}
		}
	}()

	return p.w.Start(ctx, p.dir)
}

// Stop releases the underlying watcher's resources.
func (p *PullWatcher) Stop() error {
	return p.w.Stop()
}

func (p *PullWatcher) handle(ctx context.Context, events []watcher.FileEvent) {
	for _, ev := range events {
		artifact := p.matchArtifact(ev.Path)
		if artifact == "" {
			continue
		}
		if !p.shouldTrigger(artifact) {
			continue
		}
		if err := p.reloader.ForceReload(ctx); err != nil {
			p.logger.Warn("notify: force reload failed", "artifact", artifact, "err", err)
		}
	}
}

// matchArtifact returns the configured artifact path/prefix that relPath
// falls under, or "" if relPath isn't one of the watched artifacts.
func (p *PullWatcher) matchArtifact(relPath string) string {
	for _, a := range p.artifactPaths {
		if relPath == a || strings.HasPrefix(relPath, a+string(filepath.Separator)) {
			return a
		}
	}
	return ""
}

// shouldTrigger reports whether artifact is outside its cooldown window,
// recording the trigger time if so. Bursts of writes against the same
// artifact within CooldownPeriod collapse into a single reload.
func (p *PullWatcher) shouldTrigger(artifact string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if last, ok := p.lastTrigger[artifact]; ok && now.Sub(last) < p.cfg.CooldownPeriod {
		return false
	}
	p.lastTrigger[artifact] = now
	return true
}
