// Package live keeps the push channel to the store open and feeds decoded
// events to the engine.
//
// The manager reconnects with capped exponential backoff and asks the
// engine for a missing-entity pull after every successful connect, which
// closes any gap left while the channel was down.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/remote"
)

// Reconnect delays used when none are configured.
const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// State is the connection state of the push channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dialer opens the push channel.
type Dialer interface {
	Dial(ctx context.Context) (remote.Conn, error)
}

// Sink receives decoded events. Enqueue returns false once the sink is
// closed.
type Sink interface {
	Enqueue(ev engine.Event) bool
}

var errSinkClosed = errors.New("event sink closed")

// Manager owns the push channel lifecycle.
type Manager struct {
	dialer       Dialer
	sink         Sink
	logger       *slog.Logger
	initialDelay time.Duration
	maxDelay     time.Duration
	onState      func(State)

	mu    sync.Mutex
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithBackoff sets the first and the largest reconnect delay.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(m *Manager) {
		if initial > 0 {
			m.initialDelay = initial
		}
		if maxDelay > 0 {
			m.maxDelay = maxDelay
		}
	}
}

// WithStateHook registers fn to be called on every state change.
func WithStateHook(fn func(State)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

// New creates a Manager that dials with d and delivers events to sink.
func New(d Dialer, sink Sink, opts ...Option) *Manager {
	m := &Manager{
		dialer:       d,
		sink:         sink,
		logger:       slog.Default(),
		initialDelay: DefaultInitialBackoff,
		maxDelay:     DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxDelay < m.initialDelay {
		m.maxDelay = m.initialDelay
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Debug("live state", "state", s.String())
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initialDelay
	b.MaxInterval = m.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run keeps the channel open until ctx is cancelled or the sink closes.
// It returns ctx.Err() on cancellation and nil when the sink closes.
func (m *Manager) Run(ctx context.Context) error {
	b := m.newBackoff()
	defer m.setState(Disconnected)

	for {
		m.setState(Connecting)
		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.setState(Disconnected)
			wait := b.NextBackOff()
			m.logger.Warn("live connect failed", "error", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}

		b.Reset()
		m.setState(Connected)
		m.logger.Info("live channel connected")

		// Anything pushed while disconnected is recovered by a pull.
		if !m.sink.Enqueue(engine.SyncRequested{}) {
			conn.Close()
			return nil
		}

		err = m.consume(ctx, conn)
		conn.Close()
		if errors.Is(err, errSinkClosed) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.setState(Disconnected)
		wait := b.NextBackOff()
		m.logger.Warn("live channel lost", "error", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// consume reads until the connection fails. Undecodable messages are
// logged and skipped.
func (m *Manager) consume(ctx context.Context, conn remote.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msg, err := conn.Read()
		if err != nil {
			var de *remote.DecodeError
			if errors.As(err, &de) {
				m.logger.Warn("malformed live message skipped", "error", err)
				continue
			}
			return err
		}

		ev, err := engine.DecodeMessage(msg)
		if err != nil {
			m.logger.Warn("live message skipped", "type", msg.Type, "error", err)
			continue
		}

		m.logger.Debug("live message", "type", msg.Type, "kind", ev.Kind())
		if !m.sink.Enqueue(ev) {
			return errSinkClosed
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
