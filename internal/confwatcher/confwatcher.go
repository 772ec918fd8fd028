// Package confwatcher contains a configuration file watcher.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bluenviron/mtxplayer/internal/logger"
)

const (
	defaultSettleTime = 100 * time.Millisecond
)

// ConfWatcher notifies changes of the configuration file.
// Bursts of file system events are coalesced into a single notification,
// sent once the file stopped changing for SettleTime.
type ConfWatcher struct {
	FilePath   string
	SettleTime time.Duration
	Parent     logger.Writer

	inner        *fsnotify.Watcher
	absolutePath string

	// in
	terminate chan struct{}

	// out
	signal chan struct{}
	done   chan struct{}
}

// Initialize initializes ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	if w.SettleTime == 0 {
		w.SettleTime = defaultSettleTime
	}

	if _, err := os.Stat(w.FilePath); err != nil {
		return err
	}

	var err error
	w.inner, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// the parent directory is watched in order to detect atomic replacements
	w.absolutePath, _ = filepath.Abs(w.FilePath)

	err = w.inner.Add(filepath.Dir(w.absolutePath))
	if err != nil {
		w.inner.Close() //nolint:errcheck
		return err
	}

	w.terminate = make(chan struct{})
	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()

	return nil
}

// Close closes ConfWatcher.
func (w *ConfWatcher) Close() {
	close(w.terminate)
	<-w.done
}

// Log implements logger.Writer.
func (w *ConfWatcher) Log(level logger.Level, format string, args ...any) {
	if w.Parent != nil {
		w.Parent.Log(level, "[conf] "+format, args...)
	}
}

func (w *ConfWatcher) isWatchedFile(event fsnotify.Event) bool {
	eventPath, _ := filepath.Abs(event.Name)
	if eventPath == w.absolutePath {
		return true
	}

	// ConfigMap volumes swap the "..data" link
	if filepath.Base(eventPath) == "..data" {
		return true
	}

	resolved, err := filepath.EvalSymlinks(w.absolutePath)
	if err != nil {
		return false
	}

	eventResolved, _ := filepath.EvalSymlinks(eventPath)
	return eventResolved == resolved
}

func (w *ConfWatcher) run() {
	defer close(w.done)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	pending := false

outer:
	for {
		select {
		case event := <-w.inner.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.isWatchedFile(event) {
				continue
			}

			settle.Reset(w.SettleTime)
			pending = true

		case <-settle.C:
			if !pending {
				continue
			}
			pending = false

			// file was removed and not replaced yet
			if _, err := os.Stat(w.absolutePath); err != nil {
				continue
			}

			w.Log(logger.Debug, "configuration file changed")

			select {
			case w.signal <- struct{}{}:
			case <-w.terminate:
				break outer
			}

		case err := <-w.inner.Errors:
			w.Log(logger.Error, "watcher error: %v", err)
			break outer

		case <-w.terminate:
			break outer
		}
	}

	settle.Stop()
	close(w.signal)
	w.inner.Close() //nolint:errcheck
}

// Watch returns a channel that is written after the configuration file has changed.
func (w *ConfWatcher) Watch() <-chan struct{} {
	return w.signal
}
