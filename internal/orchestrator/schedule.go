package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Start launches the periodic resync. It is a no-op when already running.
// The loop ends when ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.run(loopCtx, o.done)
}

// Stop cancels the periodic resync and waits for an in-flight periodic
// sync to finish.
func (o *Orchestrator) Stop() {
	o.loopMu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (o *Orchestrator) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	log := zap.L().With(zap.String("component", "orchestrator.scheduler"))
	log.Info("starting periodic sync", zap.Duration("interval", o.interval))

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("periodic sync stopped")
			return
		case <-ticker.C:
			o.tick(ctx, log)
		}
	}
}

// tick runs one periodic sync. The sync is detached from loop cancellation
// so teardown lets it finish, bounded by the sync timeout.
func (o *Orchestrator) tick(ctx context.Context, log *zap.Logger) {
	syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	if _, err := o.SyncNow(syncCtx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			log.Debug("periodic sync skipped, another sync is running")
			return
		}
		log.Warn("periodic sync failed", zap.Error(err))
	}
}
