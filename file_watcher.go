package gyre

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher adapts a file on disk into an event source for a loop: every
// write surfaces the file's full contents as one payload. Wire it through
// FromWatcher with a Codec matching the file format:
//
//	fb := gyre.FromWatcher[State](
//	    gyre.NewFileWatcher("thresholds.yaml"),
//	    gyre.YAMLCodec{},
//	    newThresholdEvent,
//	)
type FileWatcher struct {
	path string
}

// NewFileWatcher creates a FileWatcher for path. The file must exist when
// Watch is called.
func NewFileWatcher(path string) *FileWatcher {
	return &FileWatcher{path: path}
}

// Watch starts observing the file. The current contents are emitted first,
// so the loop reduces the file's starting value before any change; after
// that, each write or re-create emits the contents again. The returned
// channel closes when ctx is cancelled.
func (w *FileWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fsw.Add(w.path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", w.path, err)
	}

	out := make(chan []byte)
	go w.pump(ctx, fsw, out)
	return out, nil
}

// pump owns the fsnotify watcher for the lifetime of one Watch call. Reads
// that fail are skipped rather than fatal: an editor replacing the file can
// leave a momentary gap, and the following event re-reads.
func (w *FileWatcher) pump(ctx context.Context, fsw *fsnotify.Watcher, out chan<- []byte) {
	defer close(out)
	defer fsw.Close()

	emit := func() {
		data, err := os.ReadFile(w.path)
		if err != nil {
			return
		}
		select {
		case out <- data:
		case <-ctx.Done():
		}
	}

	emit()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				emit()
			}
		case _, ok := <-fsw.Errors:
			if !ok {
				return
			}
		}
	}
}
