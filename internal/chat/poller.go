package chat

import (
	"context"
	"fmt"
	"sync"
)

// State is the state of a Poller
type State int

const (
	StateIdle State = iota
	StatePolling
)

// String returns the string representation of a poller state
func (s State) String() string {
	return [...]string{"idle", "polling"}[s]
}

// Poller keeps a Log fresh: one initial load, then a refresh every time the
// transport's subscription fires, until stopped.
type Poller struct {
	log *Log

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates an idle poller for log
func NewPoller(log *Log) *Poller {
	return &Poller{log: log}
}

// State returns the current poller state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start loads the log and begins refreshing it. Failing to subscribe leaves
// the poller idle and returns the error; a failing initial load does not.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePolling {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)

	// Initial load failures are reported through the log's error handler
	_ = p.log.Refresh(ctx)

	ticks, err := p.log.Transport().Subscribe(ctx, p.log.SessionID())
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start chat refresh: %w", err)
	}

	done := make(chan struct{})
	p.state = StatePolling
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		for range ticks {
			_ = p.log.Refresh(ctx)
		}
	}()

	return nil
}

// Stop cancels the refresh loop and waits for it to exit
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	p.cancel()
	done := p.done
	p.state = StateIdle
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	<-done
}
