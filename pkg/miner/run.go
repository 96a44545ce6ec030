package miner

import (
	"context"
	"errors"
	"sync"

	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/logger"
)

// Run consumes events from mb with the given number of workers until ctx is
// canceled or the bus is closed, then handles whatever is still queued
// before returning. Events are handled with a context that is not canceled
// by ctx, so an event already taken off the bus is indexed and logged in
// full.
func (p *Pipeline) Run(ctx context.Context, mb *bus.MessageBus, workers int) {
	if workers < 1 {
		workers = 1
	}
	hctx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				ev, ok := mb.ConsumeInbound(ctx)
				if !ok {
					break
				}
				p.handleLogged(hctx, worker, ev)
			}
			for {
				ev, ok := mb.TryConsumeInbound()
				if !ok {
					return
				}
				p.handleLogged(hctx, worker, ev)
			}
		}(i)
	}

	logger.InfoCF("miner", "Pipeline workers started", map[string]any{"workers": workers})
	wg.Wait()
	logger.InfoC("miner", "Pipeline workers stopped")
}

func (p *Pipeline) handleLogged(ctx context.Context, worker int, ev bus.Event) {
	out, err := p.Handle(ctx, ev)
	fields := map[string]any{
		"worker":     worker,
		"channel":    ev.Channel,
		"message_id": ev.MessageID,
		"peer":       string(ev.Peer.Kind),
		"peer_id":    ev.Peer.ID,
		"outcome":    out.String(),
	}
	if err == nil {
		logger.DebugCF("miner", "Event handled", fields)
		return
	}

	fields["error"] = err.Error()
	if errors.Is(err, ErrMalformedEvent) {
		logger.WarnCF("miner", "Dropped malformed event", fields)
		return
	}
	logger.ErrorCF("miner", "Event processing failed", fields)
}
