// Package main provides the sessionpool command line tool. It loads a pool
// configuration, binds an account store, and performs a managed request with
// one account or with every account in the pool.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/wirecat/sessionpool/pkg/account"
	"github.com/wirecat/sessionpool/pkg/account/postgres"
	"github.com/wirecat/sessionpool/pkg/pool"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath  string
	store       string
	databaseURL string
	secret      string
	method      string
	broadcast   bool
	debug       bool
	showVersion bool
}

func parseFlags() cliOptions {
	opts := cliOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to pool configuration file")
	flag.StringVar(&opts.store, "store", "memory", "Account store: memory, postgres")
	flag.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string for the postgres store")
	flag.StringVar(&opts.secret, "secret", os.Getenv("POOL_ENCRYPTION_SECRET"), "Secret for at-rest credential encryption in the postgres store")
	flag.StringVar(&opts.method, "method", http.MethodGet, "HTTP method for the request")
	flag.BoolVar(&opts.broadcast, "all", false, "Perform the request with every account in the pool")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("sessionpool version %s\n", version)
		return nil
	}

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	path := flag.Arg(0)
	if path == "" {
		return fmt.Errorf("usage: sessionpool -config <file> [flags] <request-path>")
	}
	if opts.configPath == "" {
		return fmt.Errorf("-config is required")
	}

	cfg, err := pool.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	ctx := setupSignalHandler()

	store, closeStore, err := openStore(ctx, opts, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	clientOpts := cfg.Options()
	clientOpts.Logger = logger
	p := pool.New(store, clientOpts)

	if opts.broadcast {
		return requestAll(ctx, p, path, opts.method)
	}
	return request(ctx, p, path, opts.method)
}

// openStore binds the configured account store and seeds it from the
// configuration file.
func openStore(ctx context.Context, opts cliOptions, cfg *pool.Config) (account.Store, func(), error) {
	switch opts.store {
	case "memory":
		store := account.NewMemoryStore()
		if err := cfg.Seed(ctx, store); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		if opts.databaseURL == "" {
			return nil, nil, fmt.Errorf("postgres store requires -database-url or DATABASE_URL")
		}

		db, err := sql.Open("postgres", opts.databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}

		store := postgres.New(db, postgres.Config{EncryptionSecret: opts.secret})
		if err := cfg.Seed(ctx, store); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store: %s", opts.store)
	}
}

func request(ctx context.Context, p *pool.Pooler, path, method string) error {
	resp, err := p.Request(ctx, path, method, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func requestAll(ctx context.Context, p *pool.Pooler, path, method string) error {
	responses, err := p.RequestAll(ctx, path, method, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, resp := range responses {
		var body json.RawMessage
		err := json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if err := enc.Encode(body); err != nil {
			return err
		}
	}
	return nil
}
