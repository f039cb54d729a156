package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/jarq/jarq/internal/storage"
)

// initLogger installs the default logger and returns its level.
func initLogger() *slog.LevelVar {
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// systemd adds its own timestamps.
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if isEmpty(a.Value.Any()) {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)
	return ll
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return !t
	case uint64:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case time.Time:
		return t.IsZero()
	case time.Duration:
		return t == 0
	case nil:
		return true
	}
	return false
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

// watchConfig reloads the log level whenever the configuration file in
// dataDir is written. The directory is watched so that editors replacing the
// file by rename are seen too.
func watchConfig(ctx context.Context, dataDir string, ll *slog.LevelVar) error {
	dir, err := filepath.Abs(dataDir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, storage.ConfigFileName)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				reloadLevel(ctx, dataDir, ll)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching config", "err", err)
			}
		}
	}()
	return nil
}

func reloadLevel(ctx context.Context, dataDir string, ll *slog.LevelVar) {
	cfg, err := storage.LoadConfig(dataDir)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring config change", "err", err)
		return
	}
	lvl, err := parseLevel(cfg.LogLevel)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring config change", "err", err)
		return
	}
	if lvl != ll.Level() {
		ll.Set(lvl)
		slog.InfoContext(ctx, "Log level changed", "level", lvl.String())
	}
}
