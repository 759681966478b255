// Package session scopes in-memory canvas state to a user and canvas.
//
// Context wiring and version history are not persisted. Each user+canvas pair
// gets its own Workspace, created on first use and evicted after it has been
// idle for a while.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/contexttree/canvas-api/internal/contextgraph"
	"github.com/contexttree/canvas-api/internal/versioning"
	"github.com/contexttree/canvas-api/pkg/logger"
	"github.com/contexttree/canvas-api/pkg/metrics"
)

// Workspace is the in-memory state of one canvas for one user.
type Workspace struct {
	Context  *contextgraph.Manager
	Versions *versioning.Manager

	// hydrateMu is held across hydration, which may call the store.
	hydrateMu sync.Mutex
	hydrated  bool

	// lastUsed is unix nanoseconds, read by the sweeper without locking.
	lastUsed atomic.Int64
}

// Hydrate runs fn once per workspace, the first time it is called. It is
// used to seed context content from persisted nodes. If fn fails, a later
// call retries it.
func (w *Workspace) Hydrate(fn func(*Workspace) error) error {
	w.hydrateMu.Lock()
	defer w.hydrateMu.Unlock()
	if w.hydrated {
		return nil
	}
	if err := fn(w); err != nil {
		return err
	}
	w.hydrated = true
	return nil
}

func (w *Workspace) touch(now time.Time) {
	w.lastUsed.Store(now.UnixNano())
}

func (w *Workspace) idleSince() time.Time {
	return time.Unix(0, w.lastUsed.Load())
}

type key struct {
	userID   string
	canvasID string
}

// Registry hands out workspaces. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	items  map[key]*Workspace
	now    func() time.Time
	logger *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		items:  make(map[key]*Workspace),
		now:    time.Now,
		logger: log,
	}
}

// Workspace returns the workspace for the pair, creating it if needed.
func (r *Registry) Workspace(userID, canvasID string) *Workspace {
	k := key{userID: userID, canvasID: canvasID}
	now := r.now()

	r.mu.Lock()
	ws, ok := r.items[k]
	if !ok {
		ws = &Workspace{
			Context:  contextgraph.NewManager(),
			Versions: versioning.NewManager(versioning.WithAuthor(userID)),
		}
		r.items[k] = ws
		metrics.WorkspacesActive.Inc()
	}
	r.mu.Unlock()

	ws.touch(now)
	return ws
}

// Drop discards the workspace for the pair.
func (r *Registry) Drop(userID, canvasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{userID: userID, canvasID: canvasID}
	if _, ok := r.items[k]; ok {
		delete(r.items, k)
		metrics.WorkspacesActive.Dec()
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep evicts workspaces idle for longer than maxIdle and returns how many
// were removed. Idle times are checked outside the registry lock, and a
// workspace used again before removal is kept.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	snapshot := make(map[key]*Workspace, len(r.items))
	for k, ws := range r.items {
		snapshot[k] = ws
	}
	r.mu.Unlock()

	var idle []key
	for k, ws := range snapshot {
		if ws.idleSince().Before(cutoff) {
			idle = append(idle, k)
		}
	}
	if len(idle) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, k := range idle {
		ws, ok := r.items[k]
		if !ok || ws != snapshot[k] || !ws.idleSince().Before(cutoff) {
			continue
		}
		delete(r.items, k)
		removed++
	}
	metrics.WorkspacesActive.Sub(float64(removed))
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(maxIdle); n > 0 {
				r.logger.Info("evicted idle workspaces",
					zap.Int("evicted", n),
					zap.Int("remaining", r.Len()),
				)
			}
		}
	}
}
