package flowclient

import (
	"context"
	"sync/atomic"
	"time"
)

// Pinger is satisfied by *Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is the engine's connectivity signal. It is offline when forced, or
// when the last health check failed.
type Probe struct {
	pinger  Pinger
	forced  bool
	timeout time.Duration
	offline atomic.Bool
}

// NewProbe returns a probe that starts online. A forced probe reports
// offline without checking.
func NewProbe(p Pinger, forced bool) *Probe {
	pr := &Probe{pinger: p, forced: forced, timeout: 3 * time.Second}
	pr.offline.Store(forced)
	return pr
}

func (p *Probe) Offline() bool {
	return p.forced || p.offline.Load()
}

// Check pings the server and records the outcome.
func (p *Probe) Check(ctx context.Context) bool {
	if p.forced {
		return true
	}
	if p.pinger == nil {
		p.offline.Store(true)
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	offline := p.pinger.Ping(ctx) != nil
	p.offline.Store(offline)
	return offline
}
