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


package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/ingestion"
	"github.com/poiesic/kbsearch/search"
	"gopkg.in/yaml.v3"
)

// Store types.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// DefaultAPIKeyEnv is the environment variable holding the embedding API key.
const DefaultAPIKeyEnv = "KBSEARCH_API_KEY"

// StoreConfig selects the chunk store.
type StoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// EmbedderConfig configures the OpenAI-compatible embedding service.
type EmbedderConfig struct {
	Host        string `yaml:"host"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// ChunkerConfig configures document chunking. Sizes are in characters.
type ChunkerConfig struct {
	Size          int     `yaml:"size"`
	Overlap       int     `yaml:"overlap"`
	MinSize       int     `yaml:"min_size"`
	BoundaryRatio float64 `yaml:"boundary_ratio"`
}

// IndexerConfig configures directory indexing.
type IndexerConfig struct {
	Extensions       []string `yaml:"extensions"`
	Recursive        bool     `yaml:"recursive"`
	Workers          int      `yaml:"workers"`
	EmbedConcurrency int      `yaml:"embed_concurrency"`
}

// SearchConfig holds default search options.
type SearchConfig struct {
	MaxResults  int                `yaml:"max_results"`
	Threshold   float64            `yaml:"threshold"`
	BoostFields map[string]float64 `yaml:"boost_fields,omitempty"`
}

// RelevanceConfig configures the evaluation harness.
type RelevanceConfig struct {
	GoldenFile  string  `yaml:"golden_file,omitempty"`
	GateHitRate float64 `yaml:"gate_hit_rate"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Relevance RelevanceConfig `yaml:"relevance"`
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	aiCfg := ai.DefaultConfig()
	chunker := ingestion.DefaultChunker()
	dirOpts := ingestion.DefaultDirectoryOptions()
	searchOpts := search.DefaultOptions()

	return &AppConfig{
		Store: StoreConfig{
			Type: StoreBadger,
			Path: "kbsearch.db",
		},
		Embedder: EmbedderConfig{
			Host:        aiCfg.EmbeddingHost,
			Model:       aiCfg.EmbeddingModel,
			APIKeyEnv:   DefaultAPIKeyEnv,
			MaxAttempts: 3,
		},
		Chunker: ChunkerConfig{
			Size:          chunker.Size,
			Overlap:       chunker.Overlap,
			MinSize:       chunker.MinSize,
			BoundaryRatio: chunker.BoundaryRatio,
		},
		Indexer: IndexerConfig{
			Extensions:       dirOpts.Extensions,
			Recursive:        dirOpts.Recursive,
			EmbedConcurrency: ingestion.DefaultEmbedConcurrency,
		},
		Search: SearchConfig{
			MaxResults: searchOpts.MaxResults,
			Threshold:  searchOpts.Threshold,
		},
		Relevance: RelevanceConfig{
			GateHitRate: 80,
		},
	}
}

// Load reads a config from path. Keys absent from the file keep their
// defaults. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", core.ErrValidation, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *AppConfig) Validate() error {
	switch c.Store.Type {
	case StoreBadger, StoreSQLite:
	default:
		return fmt.Errorf("%w: unknown store type %q", core.ErrValidation, c.Store.Type)
	}
	if _, err := c.ChunkerConfig(); err != nil {
		return err
	}
	if err := c.SearchOptions().Validate(); err != nil {
		return err
	}
	if c.Relevance.GateHitRate < 0 || c.Relevance.GateHitRate > 100 {
		return fmt.Errorf("%w: gate_hit_rate must be between 0 and 100", core.ErrValidation)
	}
	return nil
}

// APIKey returns the embedding API key from the configured environment
// variable, or "" if it is unset.
func (c *AppConfig) APIKey() string {
	name := c.Embedder.APIKeyEnv
	if name == "" {
		name = DefaultAPIKeyEnv
	}
	return os.Getenv(name)
}

// AIConfig builds the embedding provider configuration.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedder.Host),
		ai.WithEmbeddingModel(c.Embedder.Model),
		ai.WithAPIKey(c.APIKey()),
		ai.WithMaxAttempts(c.Embedder.MaxAttempts),
	)
}

// ChunkerConfig returns the validated chunker.
func (c *AppConfig) ChunkerConfig() (ingestion.Chunker, error) {
	chunker := ingestion.Chunker{
		Size:          c.Chunker.Size,
		Overlap:       c.Chunker.Overlap,
		MinSize:       c.Chunker.MinSize,
		BoundaryRatio: c.Chunker.BoundaryRatio,
	}
	return chunker, chunker.Validate()
}

// DirectoryOptions returns the directory indexing options.
func (c *AppConfig) DirectoryOptions() *ingestion.DirectoryOptions {
	return &ingestion.DirectoryOptions{
		Extensions: c.Indexer.Extensions,
		Recursive:  c.Indexer.Recursive,
	}
}

// IndexerOptions returns the indexer options the configuration implies.
func (c *AppConfig) IndexerOptions() ([]ingestion.Option, error) {
	chunker, err := c.ChunkerConfig()
	if err != nil {
		return nil, err
	}
	opts := []ingestion.Option{ingestion.WithChunker(chunker)}
	if c.Indexer.Workers > 0 {
		opts = append(opts, ingestion.WithPoolSize(c.Indexer.Workers))
	}
	if c.Indexer.EmbedConcurrency > 0 {
		opts = append(opts, ingestion.WithEmbedConcurrency(c.Indexer.EmbedConcurrency))
	}
	return opts, nil
}

// SearchOptions returns the default search options.
func (c *AppConfig) SearchOptions() *search.Options {
	return &search.Options{
		MaxResults:  c.Search.MaxResults,
		Threshold:   c.Search.Threshold,
		BoostFields: c.Search.BoostFields,
	}
}
