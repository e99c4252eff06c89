// Package liveness provides keep-alive and timeout tracking for a node's
// links. It lives in the environment layer, not the routing core: the core
// has no timeouts of its own and only reacts to OnRemoveLink being called
// for it (spec §5).
//
// The Manager tracks when each port was last heard from and fires a timeout
// callback when a port's inactivity exceeds the configured threshold. This
// corresponds to the teacher's device/connection.Manager, keyed by link port
// instead of peer identity.
package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-net/routesim/core"
)

const (
	// DefaultKeepAliveInterval is the default interval between expected
	// activity on a link. Links that haven't been heard from within
	// KeepAliveInterval × TimeoutMultiplier are considered down.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultTimeoutMultiplier is the default multiplier applied to
	// KeepAliveInterval to determine the timeout threshold.
	DefaultTimeoutMultiplier = 2.5

	// checkInterval is the resolution of the manager's timeout check loop.
	checkInterval = time.Second
)

type portState struct {
	lastSeen time.Time
	// warned is set once a port has gone quiet past KeepAliveInterval but
	// before the harder KeepAliveInterval×TimeoutMultiplier cutoff, so the
	// single-interval warning logs only once per quiet spell instead of on
	// every CheckTimeouts tick.
	warned bool
}

// Config configures a Manager.
type Config struct {
	// KeepAliveInterval is the expected interval between activity on a link.
	// Default: 30 seconds.
	KeepAliveInterval time.Duration

	// TimeoutMultiplier is applied to KeepAliveInterval to determine when a
	// link is considered down. Default: 2.5.
	TimeoutMultiplier float64

	// Logger for liveness events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Manager tracks per-port link activity and detects timeouts.
type Manager struct {
	cfg    Config
	log    *slog.Logger
	mu     sync.Mutex
	ports  map[core.Port]*portState
	onIdle func(port core.Port)
	cancel context.CancelFunc

	// nowFn allows overriding time.Now() for testing.
	nowFn func() time.Time
}

// NewManager creates a liveness manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.TimeoutMultiplier <= 0 {
		cfg.TimeoutMultiplier = DefaultTimeoutMultiplier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:   cfg,
		log:   logger.WithGroup("liveness"),
		ports: make(map[core.Port]*portState),
		nowFn: time.Now,
	}
}

// SetOnTimeout sets the callback invoked when a port's link is declared down
// due to inactivity. The caller is expected to call the routing core's
// OnRemoveLink(port) from this callback.
func (m *Manager) SetOnTimeout(fn func(port core.Port)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onIdle = fn
}

// Register starts tracking a port, as if it had just been heard from.
func (m *Manager) Register(port core.Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ports[port] = &portState{lastSeen: m.nowFn()}
}

// Touch updates the last-seen time for a port. Does nothing if the port is
// not tracked.
func (m *Manager) Touch(port core.Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.ports[port]; ok {
		p.lastSeen = m.nowFn()
		p.warned = false
	}
}

// Remove explicitly stops tracking a port. The timeout callback is NOT
// called (use this for a deliberate link teardown).
func (m *Manager) Remove(port core.Port) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ports, port)
}

// IsTracked returns true if the port is currently tracked.
func (m *Manager) IsTracked(port core.Port) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ports[port]
	return ok
}

// CheckTimeouts checks all tracked ports against two thresholds. A port
// quiet past KeepAliveInterval is logged once as overdue, giving an
// operator a signal that a link is degrading before it's torn down. A port
// quiet past KeepAliveInterval×TimeoutMultiplier is dropped from tracking
// and fires the timeout callback.
func (m *Manager) CheckTimeouts() {
	m.mu.Lock()
	now := m.nowFn()
	warnAfter := m.cfg.KeepAliveInterval
	timeout := time.Duration(float64(m.cfg.KeepAliveInterval) * m.cfg.TimeoutMultiplier)

	var timedOut []core.Port
	for port, p := range m.ports {
		quiet := now.Sub(p.lastSeen)
		switch {
		case quiet > timeout:
			timedOut = append(timedOut, port)
		case quiet > warnAfter && !p.warned:
			p.warned = true
			m.log.Warn("link overdue for keep-alive", "port", port, "quiet", quiet)
		}
	}
	for _, port := range timedOut {
		delete(m.ports, port)
	}

	onIdle := m.onIdle
	m.mu.Unlock()

	if onIdle != nil {
		for _, port := range timedOut {
			m.log.Debug("link timed out", "port", port)
			onIdle(port)
		}
	}
}

// Start begins the periodic timeout check loop. Blocks until the context is
// cancelled.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckTimeouts()
		}
	}
}

// Stop cancels the manager's context, stopping the timeout check loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}
