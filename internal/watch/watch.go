// Package watch wraps fsnotify into the push half of the dual detection
// scheme: subscribe to directories, receive creation events. Consumers
// must pair it with a periodic rescan: creation events are missed
// whenever the process was not running, and the kernel may coalesce them.

package watch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tealdesk/aide/internal/logging"
)

// Event is one observed file creation.
type Event struct {
	// Dir is the watched directory the file appeared in.
	Dir string
	// Name is the bare file name.
	Name string
}

// Notifier streams file-creation events for a fixed set of directories.
type Notifier struct {
	watcher *fsnotify.Watcher
	log     logging.Printer
}

// NewNotifier subscribes to the given directories. Directories must exist;
// the vault bootstrap guarantees that at startup.
func NewNotifier(log logging.Printer, dirs ...string) (*Notifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch: subscribe %s: %w", dir, err)
		}
	}
	return &Notifier{watcher: watcher, log: log}, nil
}

// Close releases the underlying watcher.
func (n *Notifier) Close() error {
	return n.watcher.Close()
}

// Run delivers creation events to handler until the context is cancelled.
// Watcher errors are logged and the stream continues; the paired rescan
// covers anything a dropped event would have missed.
func (n *Notifier) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if !ev.Op.Has(fsnotify.Create) {
				continue
			}
			handler(Event{Dir: filepath.Dir(ev.Name), Name: filepath.Base(ev.Name)})
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.log.Printf("watch: %v", err)
		}
	}
}
