package gate

import (
	"context"
	"path/filepath"
	"time"

	"github.com/tealdesk/aide/internal/store"
	"github.com/tealdesk/aide/internal/watch"
)

// Watch runs the gate until the context is cancelled, combining the push
// notifier with a periodic full rescan. Either mechanism alone is
// insufficient: push events are missed while the process is down, and the
// rescan alone adds up to one interval of latency.
func (g *Gate) Watch(ctx context.Context, notifier *watch.Notifier, rescanEvery time.Duration) error {
	// Initial rescan picks up decisions made while nobody was watching.
	if err := g.ScanOnce(ctx); err != nil {
		g.log.Printf("gate: initial scan: %v", err)
	}

	events := make(chan watch.Event, 16)
	go notifier.Run(ctx, func(ev watch.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	ticker := time.NewTicker(rescanEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			g.Notify(ctx, stageForDir(ev.Dir), ev.Name)
		case <-ticker.C:
			if err := g.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				g.log.Printf("gate: rescan: %v", err)
			}
		}
	}
}

func stageForDir(dir string) store.Stage {
	switch filepath.Base(dir) {
	case string(store.StageApproved):
		return store.StageApproved
	case string(store.StageRejected):
		return store.StageRejected
	default:
		return ""
	}
}
