package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	tt "github.com/gnolang/permcheck/internal/types"
)

// settleDelay groups the writes of one save into a single run.
const settleDelay = 100 * time.Millisecond

// ReportFunc receives the outcome of re-verifying a changed file.
type ReportFunc func(filename string, issues []tt.Issue, err error)

// StartWatching re-verifies program files under dirs whenever they are
// written or created, until ctx is done or StopWatching is called.
func (e *Engine) StartWatching(ctx context.Context, dirs []string, report ReportFunc) error {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()

	if e.watcher != nil {
		return fmt.Errorf("already watching")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return w.Add(path)
			}
			return nil
		})
		if err != nil {
			w.Close()
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	e.watcher = w
	e.watchDone = make(chan struct{})
	go e.watchLoop(ctx, w, report, e.watchDone)
	return nil
}

// StopWatching stops the watcher and waits for the loop to exit.
func (e *Engine) StopWatching() error {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()

	if e.watcher == nil {
		return errors.New("not watching")
	}
	err := e.watcher.Close()
	<-e.watchDone
	e.watcher, e.watchDone = nil, nil
	return err
}

func (e *Engine) watchLoop(ctx context.Context, w *fsnotify.Watcher, report ReportFunc, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			e.handleFileEvent(ctx, event, report)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			e.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (e *Engine) handleFileEvent(ctx context.Context, event fsnotify.Event, report ReportFunc) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !IsProgramFile(event.Name) {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(settleDelay):
	}

	issues, err := e.Run(ctx, event.Name)
	if err != nil {
		e.logger.Error("error verifying changed file", zap.String("file", event.Name), zap.Error(err))
	} else {
		e.logger.Info("verified changed file",
			zap.String("file", event.Name),
			zap.Int("issues", len(issues)),
		)
	}
	if report != nil {
		report(event.Name, issues, err)
	}
}
