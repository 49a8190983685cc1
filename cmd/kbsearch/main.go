// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/kbsearch"
	"github.com/poiesic/kbsearch/ai/openai"
	"github.com/poiesic/kbsearch/config"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/reembed"
	"github.com/poiesic/kbsearch/relevance"
	"github.com/poiesic/kbsearch/search"
	"github.com/urfave/cli/v2"
)

// newProvider creates the embedding provider. Tests replace it.
var newProvider = openai.NewProvider

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kbsearch",
		Usage: "Index a knowledge base and search it semantically",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "kbsearch.yaml",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` (default .env)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the store (overrides config)",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Store type: badger or sqlite (overrides config)",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL (overrides config)",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name (overrides config)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index files and directories",
				ArgsUsage: "PATH...",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "ext",
						Usage: "Allowed file extension, repeatable (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "no-recursive",
						Usage: "Do not descend into subdirectories",
					},
					&cli.StringSliceFlag{
						Name:  "meta",
						Usage: "Metadata `KEY=VALUE` applied to every indexed file, repeatable",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search the knowledge base",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max-results",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results (default from config)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum boosted score (default from config)",
					},
					&cli.StringSliceFlag{
						Name:  "boost",
						Usage: "Metadata field boost `FIELD=FACTOR`, repeatable",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Log every scoring step to stderr",
					},
				},
			},
			{
				Name:   "evaluate",
				Usage:  "Run the golden query set and report relevance",
				Action: evaluateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "golden",
						Usage: "Golden query YAML file (default built-in set)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Report format: markdown or json",
						Value: "markdown",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the report to `FILE` instead of stdout",
					},
					&cli.Float64Flag{
						Name:  "gate",
						Usage: "Required hit rate @3 in percent (default from config)",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show index and search metrics",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "reset",
						Usage: "Clear metrics after printing them",
					},
				},
			},
			{
				Name:   "recent",
				Usage:  "List the most recently indexed chunks",
				Action: recentCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of chunks to list",
						Value: 10,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all chunks with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "only-stale",
						Usage: "Skip chunks already embedded with the configured model",
					},
				},
			},
		},
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	if err := config.LoadEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("store") {
		cfg.Store.Type = c.String("store")
	}
	if c.IsSet("embedding-host") {
		cfg.Embedder.Host = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.Embedder.Model = c.String("embedding-model")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine opens the configured store. The returned func closes the
// engine and the provider.
func openEngine(c *cli.Context) (*kbsearch.Engine, *config.AppConfig, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}

	aiConfig := cfg.AIConfig()
	if err := aiConfig.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	provider, err := newProvider(aiConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	engine, err := kbsearch.Open(cfg.Store.Path,
		kbsearch.WithStore(kbsearch.StoreType(cfg.Store.Type)),
		kbsearch.WithProvider(provider),
		kbsearch.WithLogger(slog.Default()))
	if err != nil {
		provider.Close()
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	closer := func() {
		if err := engine.Close(); err != nil {
			slog.Error("error closing store", "err", err)
		}
		if err := provider.Close(); err != nil {
			slog.Error("error closing embedding provider", "err", err)
		}
	}
	return engine, cfg, closer, nil
}

func indexCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one path is required")
	}
	metadata, err := parseMetadata(c.StringSlice("meta"))
	if err != nil {
		return err
	}

	engine, cfg, closeEngine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer closeEngine()

	indexerOpts, err := cfg.IndexerOptions()
	if err != nil {
		return err
	}
	indexer, err := engine.NewIndexer(indexerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}
	defer indexer.Release()

	dirOpts := cfg.DirectoryOptions()
	if c.IsSet("ext") {
		dirOpts.Extensions = c.StringSlice("ext")
	}
	if c.Bool("no-recursive") {
		dirOpts.Recursive = false
	}
	dirOpts.Metadata = metadata

	ctx := context.Background()
	out := c.App.Writer
	failed := 0
	for _, path := range c.Args().Slice() {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			res := indexer.IndexFile(ctx, path, metadata)
			if !res.Success {
				failed++
				fmt.Fprintf(out, "FAIL %s: %s\n", res.Path, res.Error())
				continue
			}
			fmt.Fprintf(out, "OK   %s (%d chunks, %v)\n", res.Path, len(res.ChunkIDs), res.Duration.Round(time.Millisecond))
			continue
		}

		res := indexer.IndexDirectory(ctx, path, dirOpts)
		if !res.Success {
			return fmt.Errorf("indexing %s failed: %s", path, res.Error())
		}
		for _, doc := range res.Failed {
			fmt.Fprintf(out, "FAIL %s: %s\n", doc.Path, doc.Error())
		}
		for _, skip := range res.Skipped {
			slog.Debug("skipped file", "path", skip.Path, "reason", skip.Reason)
		}
		s := res.Summary
		fmt.Fprintf(out, "%s: %d indexed, %d failed, %d skipped, %d chunks in %v\n",
			res.Root, s.Succeeded, s.Failed, s.Skipped, s.Chunks, s.Duration.Round(time.Millisecond))
		failed += s.Failed
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d files failed to index", failed), 1)
	}
	return nil
}

type jsonResult struct {
	File       string             `json:"file"`
	Path       string             `json:"path"`
	Similarity float64            `json:"similarity"`
	Score      float64            `json:"score"`
	Boosts     map[string]float64 `json:"boosts,omitempty"`
	Content    string             `json:"content"`
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}
	boosts, err := parseBoosts(c.StringSlice("boost"))
	if err != nil {
		return err
	}

	engine, cfg, closeEngine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer closeEngine()

	opts := cfg.SearchOptions()
	if c.IsSet("max-results") {
		opts.MaxResults = c.Int("max-results")
	}
	if c.IsSet("threshold") {
		opts.Threshold = c.Float64("threshold")
	}
	if len(boosts) > 0 {
		opts.BoostFields = boosts
	}

	var searchOpts []search.Option
	if c.Bool("explain") {
		explain := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
		searchOpts = append(searchOpts, search.WithMonitor(search.NewLoggingMonitor(explain)))
	}
	searcher, err := engine.NewSearcher(searchOpts...)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	resp := searcher.Search(context.Background(), query, opts)
	if !resp.Success {
		return fmt.Errorf("search failed: %w", resp.Err)
	}

	out := c.App.Writer
	if c.Bool("json") {
		results := make([]jsonResult, 0, len(resp.Results))
		for _, r := range resp.Results {
			results = append(results, jsonResult{
				File:       r.Chunk.FileName(),
				Path:       r.Chunk.SourcePath(),
				Similarity: r.Similarity,
				Score:      r.Score,
				Boosts:     r.Boosts,
				Content:    r.Chunk.Content,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(resp.Results) == 0 {
		fmt.Fprintf(out, "No results for %q (%d chunks scanned)\n", query, resp.Scanned)
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(out, "%d. %s  score %.3f (similarity %.3f)\n", i+1, r.Chunk.SourcePath(), r.Score, r.Similarity)
		fmt.Fprintf(out, "   %s\n", snippet(r.Chunk.Content, 160))
	}
	fmt.Fprintf(out, "\n%d results, %d chunks scanned in %v\n", len(resp.Results), resp.Scanned, resp.Duration.Round(time.Millisecond))
	return nil
}

func evaluateCommand(c *cli.Context) error {
	format := strings.ToLower(c.String("format"))
	if format != "markdown" && format != "json" {
		return fmt.Errorf("invalid format %q: must be markdown or json", format)
	}

	engine, cfg, closeEngine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer closeEngine()

	gate := cfg.Relevance.GateHitRate
	if c.IsSet("gate") {
		gate = c.Float64("gate")
	}
	opts := []relevance.Option{relevance.WithGateHitRate(gate)}

	golden := cfg.Relevance.GoldenFile
	if c.IsSet("golden") {
		golden = c.String("golden")
	}
	if golden != "" {
		queries, err := relevance.LoadGoldenQueriesFile(golden)
		if err != nil {
			return err
		}
		opts = append(opts, relevance.WithQueries(queries))
	}

	harness, err := engine.NewHarness(opts...)
	if err != nil {
		return fmt.Errorf("failed to create harness: %w", err)
	}
	report := harness.Run(context.Background())

	var out io.Writer = c.App.Writer
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if format == "json" {
		err = relevance.RenderJSON(out, report)
	} else {
		err = relevance.RenderMarkdown(out, report)
	}
	if err != nil {
		return err
	}

	if !report.Gate.Passed() {
		return cli.Exit(fmt.Sprintf("relevance gate failed: hit rate @3 %.1f%% below %.1f%%",
			report.Gate.HitRate3, report.Gate.Threshold), 1)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	engine, _, closeEngine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer closeEngine()

	ctx := context.Background()
	im, err := engine.IndexMetrics(ctx)
	if err != nil {
		return err
	}
	sm, err := engine.SearchMetrics(ctx)
	if err != nil {
		return err
	}
	chunks, err := engine.Chunks().CountChunks(ctx)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Chunks stored:        %d\n", chunks)
	fmt.Fprintf(out, "Documents indexed:    %d\n", im.DocumentsIndexed)
	fmt.Fprintf(out, "Chunks indexed:       %d\n", im.ChunksIndexed)
	fmt.Fprintf(out, "Embeddings generated: %d\n", im.EmbeddingsGenerated)
	fmt.Fprintf(out, "Characters processed: %d\n", im.CharactersProcessed)
	fmt.Fprintf(out, "Indexing time:        %v\n", im.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(out, "Searches:             %d\n", sm.TotalSearches)
	fmt.Fprintf(out, "Average results:      %.1f\n", sm.AverageResults())
	fmt.Fprintf(out, "Average search time:  %v\n", sm.AverageDuration().Round(time.Microsecond))
	if len(sm.Recent) > 0 {
		fmt.Fprintln(out, "Recent queries:")
		for i := len(sm.Recent) - 1; i >= 0; i-- {
			q := sm.Recent[i]
			fmt.Fprintf(out, "  %s  %q  %d results  %v\n",
				q.Timestamp.Local().Format(time.DateTime), q.Query, q.ResultCount, q.Duration.Round(time.Millisecond))
		}
	}

	if c.Bool("reset") {
		if err := engine.ResetMetrics(ctx); err != nil {
			return fmt.Errorf("failed to reset metrics: %w", err)
		}
		fmt.Fprintln(out, "Metrics reset.")
	}
	return nil
}

func recentCommand(c *cli.Context) error {
	limit := c.Int("limit")
	if limit <= 0 {
		return errors.New("limit must be greater than 0")
	}

	engine, _, closeEngine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer closeEngine()

	chunks, err := engine.RecentChunks(context.Background(), limit)
	if err != nil {
		return err
	}
	out := c.App.Writer
	for _, chunk := range chunks {
		fmt.Fprintf(out, "%s  %s  %s\n",
			chunk.IndexedAt.Local().Format(time.DateTime), chunk.SourcePath(), snippet(chunk.Content, 80))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		OnlyStale:      c.Bool("only-stale"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	engine, cfg, closeEngine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer closeEngine()

	reembedder, err := engine.NewReembedder(reembedConfig, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("failed to create reembedder: %w", err)
	}

	fmt.Fprintf(c.App.ErrWriter, "Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Type)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.Embedder.Host)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedder.Model)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := reembedder.Run(context.Background()); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

// parseMetadata parses KEY=VALUE pairs. Values that parse as numbers or
// booleans are stored typed.
func parseMetadata(pairs []string) (core.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(core.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected KEY=VALUE", pair)
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			meta[key] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			meta[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			meta[key] = b
		} else {
			meta[key] = value
		}
	}
	return meta, nil
}

func parseBoosts(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	boosts := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid boost %q: expected FIELD=FACTOR", pair)
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid boost %q: %w", pair, err)
		}
		boosts[field] = factor
	}
	return boosts, nil
}

// snippet flattens whitespace and truncates s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
