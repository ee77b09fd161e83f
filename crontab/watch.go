package crontab

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch re-parses the crontab at path whenever it changes and hands every
// valid result to onChange. An edit that does not parse is logged and the
// previous jobs stay in effect. The parent directory is watched so that
// editors replacing the file by rename are noticed too. Watch blocks until
// ctx is done.
func Watch(ctx context.Context, path string, logger *logrus.Entry, onChange func(*Crontab)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Infof("watching crontab %s for changes", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != abs {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			logger.Debugf("crontab event: %s", event)

			ct, err := ParseFile(path, logger)
			if err != nil {
				logger.Errorf("keeping previous crontab: %v", err)
				continue
			}

			logger.Infof("crontab reloaded: %d jobs", len(ct.Jobs))
			onChange(ct)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("watch error: %v", err)
		}
	}
}
