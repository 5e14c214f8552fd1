package trace

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nfstrace/nfstrace/internal/logger"
)

// Await blocks until the capture file grows beyond the reader's current
// cursor, the context is cancelled, or the reader is closed. It is the
// polling half of the live-trace contract: when Next reports io.EOF or
// ErrAwaitingData on a still-growing capture, Await parks the caller until
// another Next attempt is worthwhile.
//
// File growth is observed through fsnotify write events, with a coarse size
// poll as a fallback for filesystems that do not deliver events (network
// mounts, some container volumes).
func (r *Reader) Await(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	waitBeyond := r.offset
	path := r.path
	r.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch trace: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch trace %q: %w", path, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// Check before waiting: the file may have grown between the caller's
		// failed Next and the watch being established.
		st, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat trace: %w", err)
		}
		if st.Size() > waitBeyond {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) {
				continue // re-stat at loop top
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				logger.Warn("capture file disappeared while following",
					logger.KeyTrace, path)
				return fmt.Errorf("trace %q removed while awaiting data", path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Debug("trace watcher error, falling back to polling",
				logger.KeyTrace, path, logger.KeyError, err)
		case <-ticker.C:
			// fallback poll, handled by the re-stat at loop top
		}
	}
}
