// Command inmor-collection runs a single federation crawl and exits,
// mirroring the original Rust inmor-collection binary (original_source/)
// as a standalone operational tool distinct from the always-on server in
// cmd/inmor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/sunet/inmor-go/internal/config"
	"github.com/sunet/inmor-go/internal/crawl"
	"github.com/sunet/inmor-go/internal/fetch"
	"github.com/sunet/inmor-go/internal/obs"
	"github.com/sunet/inmor-go/internal/snapshot"
	"github.com/sunet/inmor-go/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	rootsFlag := flag.String("roots", "", "comma-separated entity identifiers to start the crawl from, overriding the config file")
	flag.Parse()

	if err := run(*configPath, *rootsFlag); err != nil {
		slog.Error("inmor-collection: fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath, rootsFlag string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roots := cfg.CrawlRoots
	if rootsFlag != "" {
		roots = splitCSV(rootsFlag)
	}
	if len(roots) == 0 {
		return fmt.Errorf("no crawl roots given (set crawl_roots in config or pass -roots)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	provider, err := obs.New(ctx, &obs.Config{
		ServiceName:  "inmor-collection",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.ObservabilityOn,
		Insecure:     true,
		SampleRate:   cfg.TraceSampleRatio,
		BatchTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

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
	crawler := crawl.New(fetcher, st, provider)

	result, err := crawler.Run(ctx, roots)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	slog.Info("inmor-collection: crawl complete",
		"visited", result.Visited, "staged", result.Staged, "errors", len(result.Errors))
	for _, e := range result.Errors {
		slog.Warn("inmor-collection: branch error", "error", e)
	}

	if cfg.S3Bucket != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		exporter := snapshot.New(s3.NewFromConfig(awsCfg), cfg.S3Bucket, st)
		key, err := exporter.Export(ctx)
		if err != nil {
			return fmt.Errorf("export snapshot: %w", err)
		}
		slog.Info("inmor-collection: snapshot exported", "bucket", cfg.S3Bucket, "key", key)
	}

	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
