package upstream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/initiative-app/offline-edge/internal/logging"
)

// Probe periodically checks whether the backend origin is reachable. The
// result is advisory only: it feeds the status endpoint and metrics and is
// never consulted by the fetch policies, which always attempt the network
// themselves.
type Probe struct {
	client   *Client
	path     string
	interval time.Duration

	reachable atomic.Bool
	onChange  func(bool)

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProbe creates a reachability probe hitting path on the origin every
// interval. onChange, if non-nil, is called whenever reachability flips.
func NewProbe(client *Client, path string, interval time.Duration, onChange func(bool)) *Probe {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Probe{
		client:   client,
		path:     path,
		interval: interval,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins probing in the background.
func (p *Probe) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run()
}

// Stop halts probing. Safe to call without a prior Start.
func (p *Probe) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started.Load() {
		<-p.done
	}
}

// Reachable reports the result of the most recent probe.
func (p *Probe) Reachable() bool {
	return p.reachable.Load()
}

func (p *Probe) run() {
	defer close(p.done)

	p.check()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.check()
		case <-p.stop:
			return
		}
	}
}

func (p *Probe) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reachable := false
	resp, err := p.client.FetchPath(ctx, p.path)
	if err == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		reachable = resp.StatusCode < 500
	}

	prev := p.reachable.Swap(reachable)
	if prev != reachable {
		logging.Info("upstream reachability changed",
			zap.Bool("reachable", reachable),
			zap.String("origin", p.client.Origin()))
		if p.onChange != nil {
			p.onChange(reachable)
		}
	}
}
