// Command inmor runs the federation server: the nine read endpoints of
// spec.md §6, the bearer-token-protected admin surface of SPEC_FULL.md
// §5.4, and a background crawl loop that periodically refreshes the live
// collection index.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sunet/inmor-go/internal/adminapi"
	"github.com/sunet/inmor-go/internal/config"
	"github.com/sunet/inmor-go/internal/crawl"
	"github.com/sunet/inmor-go/internal/entity"
	"github.com/sunet/inmor-go/internal/fetch"
	"github.com/sunet/inmor-go/internal/httpapi"
	"github.com/sunet/inmor-go/internal/obs"
	"github.com/sunet/inmor-go/internal/policy"
	"github.com/sunet/inmor-go/internal/resolve"
	"github.com/sunet/inmor-go/internal/signingkey"
	"github.com/sunet/inmor-go/internal/store"
	"github.com/sunet/inmor-go/internal/trustmark"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("inmor: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := obs.New(ctx, &obs.Config{
		ServiceName:  "inmor-federation",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRatio,
		BatchTimeout: 5 * time.Second,
		Enabled:      cfg.ObservabilityOn,
		Insecure:     true,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	key, err := loadOrGenerateKey(cfg.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}

	var st store.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if pingErr := rdb.Ping(ctx).Err(); pingErr != nil {
			return fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, pingErr)
		}
		st = store.NewRedisStore(rdb)
	} else {
		st = store.NewMemStore()
	}

	fetcher := fetch.New(nil, cfg.FetchRatePerSecond, cfg.FetchBurst)
	resolver := resolve.New(fetcher)
	crawler := crawl.New(fetcher, st, provider)
	trustMarks := trustmark.New(st)
	policyEngine := policy.Engine{}

	selfMetadata := entity.Metadata{
		entity.TypeFederationEntity: mustMarshalJSON(entity.FederationEntityMetadata{
			FetchEndpoint:   cfg.EntityIdentifier + "/fetch",
			ListEndpoint:    cfg.EntityIdentifier + "/list",
			ResolveEndpoint: cfg.EntityIdentifier + "/resolve",
		}),
	}

	fedServer := httpapi.New(cfg.EntityIdentifier, selfMetadata, key, st, resolver, policyEngine, trustMarks)
	fedServer.AuthorityHints = cfg.AuthorityHints
	fedServer.Obs = provider

	admin := &adminapi.Server{
		Crawler:     crawler,
		SigningKey:  key,
		CrawlRoots:  cfg.CrawlRoots,
		BearerToken: cfg.AdminBearerToken,
	}

	mux := http.NewServeMux()
	mux.Handle("/", fedServer.Routes())
	mux.Handle("/admin/", admin.Routes())

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go runPeriodicCrawl(ctx, crawler, cfg.CrawlRoots, 10*time.Minute)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("inmor: listening", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runPeriodicCrawl refreshes the live collection index on a fixed interval
// until ctx is canceled (spec.md §4.6 names the crawl itself; the schedule
// is an operational concern SPEC_FULL.md §5 leaves to the server binary).
func runPeriodicCrawl(ctx context.Context, crawler *crawl.Crawler, roots []string, interval time.Duration) {
	if len(roots) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		result, err := crawler.Run(ctx, roots)
		if err != nil {
			slog.Error("inmor: crawl failed", "error", err)
		} else {
			slog.Info("inmor: crawl complete", "visited", result.Visited, "staged", result.Staged, "errors", len(result.Errors))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func loadOrGenerateKey(path string) (*signingkey.Handle, error) {
	if path == "" {
		slog.Warn("inmor: no signing key file configured, generating an ephemeral Ed25519 key")
		return signingkey.GenerateEd25519()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("parse %s as JWK: %w", path, err)
	}
	return signingkey.New(jwk)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func mustMarshalJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
