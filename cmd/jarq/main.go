// Package main is the entry point for the jarq server.
//
// jarq stores users' repositories of texts as files under a storage root,
// indexes them in SQLite and exposes them over a JSON HTTP API. Configuration
// is read from {data-dir}/jarq.yaml; command line flags override it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"

	"github.com/jarq/jarq/internal/library"
	"github.com/jarq/jarq/internal/server"
	"github.com/jarq/jarq/internal/server/ratelimit"
	"github.com/jarq/jarq/internal/storage"
	"github.com/jarq/jarq/internal/storage/git"
	"github.com/jarq/jarq/internal/storage/sqldb"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "jarq: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configSchema := flag.Bool("config-schema", false, "Print the JSON schema of "+storage.ConfigFileName+" and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides "+storage.ConfigFileName)
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}
	if *configSchema {
		return printConfigSchema()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := initLogger()

	cfg, err := storage.LoadConfig(*dataDir)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	lvl, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	ll.Set(lvl)
	if !set["log-level"] {
		if err := watchConfig(ctx, *dataDir, ll); err != nil {
			return fmt.Errorf("failed to watch %s: %w", storage.ConfigFileName, err)
		}
	}
	cfg.ResolvePaths(*dataDir)

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	db, err := sqldb.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := os.MkdirAll(cfg.StorageRoot, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	root, err := storage.NewRoot(cfg.StorageRoot)
	if err != nil {
		return err
	}

	opts := library.Options{}
	if cfg.History {
		opts.History = git.NewManager(git.Author{Name: cfg.HistoryAuthor.Name, Email: cfg.HistoryAuthor.Email})
	}
	svc := library.New(db, storage.NewResolver(root), opts)

	var limiters server.Limiters
	if cfg.RateLimits.WritePerMin > 0 {
		limiters.Writes = ratelimit.NewLimiter(cfg.RateLimits.WritePerMin, cfg.RateLimits.Burst)
		defer limiters.Writes.Close()
	}
	if cfg.RateLimits.AuthFailuresPerMin > 0 {
		limiters.AuthFailures = ratelimit.NewLimiter(cfg.RateLimits.AuthFailuresPerMin, cfg.RateLimits.AuthBurst)
		defer limiters.AuthFailures.Close()
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, limiters),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		v, _, _, _ := getBuildInfo()
		slog.InfoContext(ctx, "Starting server", "addr", addr, "root", root.Path(), "history", cfg.History, "version", v)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printConfigSchema() error {
	r := jsonschema.Reflector{DoNotReference: true}
	b, err := json.MarshalIndent(r.Reflect(&storage.Config{}), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Printf("%s\n", b)
	return err
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("jarq %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
