package billing

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ConnectionState is the lifecycle state of the billing session. It is owned
// exclusively by Connection; other components only read it through Ready.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
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

// Connection owns the single session to the purchasing backend. After the
// session has been established once, a backend-initiated loss triggers
// reconnect attempts forever, spaced by exponential backoff. Setup failures
// are logged, never surfaced; no caller request exists yet at that point.
type Connection struct {
	log     *zap.Logger
	backend Backend

	mu            sync.Mutex
	state         ConnectionState
	closed        bool
	everConnected bool
	retry         *backoff.ExponentialBackOff
}

func NewConnection(log *zap.Logger, backend Backend) *Connection {
	retry := backoff.NewExponentialBackOff()
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0 // retry forever

	return &Connection{
		log:     log,
		backend: backend,
		state:   Disconnected,
		retry:   retry,
	}
}

// Connect starts establishing the session. It is idempotent: if a session is
// already connected or connecting, it is a no-op.
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.closed || c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	c.mu.Unlock()

	c.backend.StartSession(c)
}

// Ready reports whether the session is connected. Every component gates its
// backend operations on this.
func (c *Connection) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close ends the session and stops any reconnect attempts.
func (c *Connection) Close() {
	c.mu.Lock()
	c.closed = true
	c.state = Disconnected
	c.mu.Unlock()

	c.backend.EndSession()
}

func (c *Connection) OnSessionReady() {
	c.mu.Lock()
	// A callback can race Close; a closed connection must never
	// become ready again.
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = Connected
	c.everConnected = true
	c.retry.Reset()
	c.mu.Unlock()

	c.log.Debug("billing session connected")
}

func (c *Connection) OnSessionFailed(code ResponseCode) {
	c.mu.Lock()
	c.state = Disconnected
	reconnect := c.everConnected && !c.closed
	delay := c.retry.NextBackOff()
	c.mu.Unlock()

	c.log.Warn("billing session setup failed", zap.Int32("code", int32(code)))

	// Failures during the automatic reconnect phase reschedule; a failure on
	// first startup does not.
	if reconnect {
		time.AfterFunc(delay, c.Connect)
	}
}

func (c *Connection) OnSessionLost() {
	c.mu.Lock()
	c.state = Disconnected
	reconnect := !c.closed
	delay := c.retry.NextBackOff()
	c.mu.Unlock()

	c.log.Debug("billing session lost", zap.Duration("reconnect_in", delay))

	if reconnect {
		time.AfterFunc(delay, c.Connect)
	}
}
