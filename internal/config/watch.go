package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
)

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config file at path each time it changes and hands the
// result, or the load error, to onChange. The parent directory is watched so
// that editors which replace the file by rename are seen too. Watch returns
// nil when ctx is done.
func Watch(ctx context.Context, path string, flags *pflag.FlagSet, onChange func(*Config, error)) error {
	if path == "" {
		return fmt.Errorf("config watch: no config file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config watch %s: %w", target, err)
	}

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				fire = time.After(reloadDelay)
			}
		case <-fire:
			fire = nil
			onChange(Load(target, flags))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config watch: %w", err)
		}
	}
}
