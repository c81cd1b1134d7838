package thresholds

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/xtxerr/hostwatch/internal/logging"
	"github.com/xtxerr/hostwatch/internal/storage/types"
)

var log = logging.Component("thresholds")

// File is the on-disk form of the rules.
//
//	thresholds:
//	  - kind: cpu
//	    percent: 90
//	    enabled: true
type File struct {
	Thresholds []types.AlertThreshold `yaml:"thresholds"`
}

// LoadFile reads and validates a threshold file.
func LoadFile(path string) ([]types.AlertThreshold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse thresholds: %w", err)
	}

	if err := Validate(f.Thresholds); err != nil {
		return nil, err
	}
	return f.Thresholds, nil
}

// SaveFile writes the rules atomically (temp file plus rename).
func SaveFile(path string, thresholds []types.AlertThreshold) error {
	data, err := yaml.Marshal(File{Thresholds: thresholds})
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".thresholds-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write thresholds: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close thresholds: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}

// Watch reloads the file into store whenever it changes, until ctx is
// cancelled. Invalid files are logged and leave the store unchanged.
//
// The parent directory is watched so that editors which replace the file
// by rename keep triggering reloads.
func Watch(ctx context.Context, path string, store *Store) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	// Coalesce bursts of events from a single save.
	const settle = 100 * time.Millisecond
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			reload(abs, store)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "path", abs, "error", err)
		}
	}
}

func reload(path string, store *Store) {
	ts, err := LoadFile(path)
	if err != nil {
		log.Warn("threshold reload rejected", "path", path, "error", err)
		return
	}
	snap, err := store.Set(ts)
	if err != nil {
		log.Warn("threshold reload rejected", "path", path, "error", err)
		return
	}
	log.Info("thresholds reloaded", "path", path, "version", snap.Version)
}
