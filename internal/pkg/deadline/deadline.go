package deadline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// Error reports an operation that exceeded its deadline. It is permanent:
// re-running the same work inside the same stage budget cannot succeed.
type Error struct {
	Op      string
	Limit   time.Duration
	Elapsed time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s exceeded %s deadline after %s", e.Op, e.Limit, e.Elapsed.Round(time.Millisecond))
}

func (e *Error) Permanent() bool { return true }

// Manager runs functions under per-operation timeouts. The timeout is a real
// context.WithTimeout handed to fn, so expiry cancels the work itself rather
// than abandoning it. CancelAll tears down every in-flight operation.
type Manager struct {
	log *logger.Logger

	mu     sync.Mutex
	active map[uint64]context.CancelFunc
	nextID uint64
}

func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		log:    log,
		active: make(map[uint64]context.CancelFunc),
	}
}

// Run executes fn under a deadline of d. A non-positive d means no deadline.
// When the deadline expires the returned error is *Error; cancellation that
// arrived through the parent ctx is passed through untouched.
func (m *Manager) Run(ctx context.Context, name string, d time.Duration, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return fn(ctx)
	}

	runCtx, cancel := context.WithTimeout(ctx, d)
	id := m.track(cancel)
	defer func() {
		m.untrack(id)
		cancel()
	}()

	start := time.Now()
	err := fn(runCtx)
	elapsed := time.Since(start)

	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		if m.log != nil {
			m.log.Warn("operation deadline exceeded", "op", name, "limit", d.String(), "elapsed", elapsed.Round(time.Millisecond).String())
		}
		return &Error{Op: name, Limit: d, Elapsed: elapsed}
	}
	return err
}

// CancelAll cancels every operation currently running under this manager.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.active))
	for _, c := range m.active {
		cancels = append(cancels, c)
	}
	m.active = make(map[uint64]context.CancelFunc)
	m.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// Active reports how many operations are currently in flight.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) track(cancel context.CancelFunc) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.active[id] = cancel
	return id
}

func (m *Manager) untrack(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}
