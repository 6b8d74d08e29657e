// Package watcher re-runs a callback when PDFs in a folder change.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"cabot/internal/logger"
)

// PDFWatcher debounces fsnotify events for *.pdf files in one folder.
type PDFWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger
}

func New(debounce time.Duration, log *zap.Logger) (*PDFWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &PDFWatcher{watcher: w, debounce: debounce, log: logger.OrNop(log)}, nil
}

// Run calls onChange once per burst of PDF create/write/remove/rename
// events in dir, until ctx is cancelled. onChange runs on the watcher
// goroutine, so bursts arriving during a run are coalesced into the next one.
func (w *PDFWatcher) Run(ctx context.Context, dir string, onChange func(context.Context)) error {
	defer w.watcher.Close()
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isPDF(event.Name) || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			w.log.Debug("pdf changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-timer.C:
			onChange(ctx)
		}
	}
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
