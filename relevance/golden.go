package relevance

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GoldenQuery is a query with known relevant documents.
type GoldenQuery struct {
	Query            string   `yaml:"query" json:"query"`
	ExpectedKeywords []string `yaml:"expected_keywords" json:"expected_keywords"`
	ExpectedFiles    []string `yaml:"expected_files" json:"expected_files"` // Source file names, without directories
	MinSimilarity    float64  `yaml:"min_similarity" json:"min_similarity"`
}

// Validate checks that the query can be evaluated.
func (q GoldenQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query text is empty", ErrInvalidGoldenQuery)
	}
	if len(q.ExpectedFiles) == 0 {
		return fmt.Errorf("%w: %q has no expected files", ErrInvalidGoldenQuery, q.Query)
	}
	if q.MinSimilarity < 0 {
		return fmt.Errorf("%w: %q has negative min_similarity", ErrInvalidGoldenQuery, q.Query)
	}
	return nil
}

// DefaultGoldenQueries returns the built-in query set used when no fixture
// file is given. It targets a product knowledge base of markdown guides
// and PHP sources.
func DefaultGoldenQueries() []GoldenQuery {
	return []GoldenQuery{
		{
			Query:            "deployment process",
			ExpectedKeywords: []string{"deploy", "release", "production"},
			ExpectedFiles:    []string{"deployment.md", "release-checklist.md"},
			MinSimilarity:    0.70,
		},
		{
			Query:            "how do users authenticate",
			ExpectedKeywords: []string{"login", "password", "token", "session"},
			ExpectedFiles:    []string{"authentication.md", "AuthController.php"},
			MinSimilarity:    0.65,
		},
		{
			Query:            "database schema migrations",
			ExpectedKeywords: []string{"migration", "schema", "table"},
			ExpectedFiles:    []string{"migrations.md", "Migration.php"},
			MinSimilarity:    0.65,
		},
		{
			Query:            "configure environment variables",
			ExpectedKeywords: []string{"environment", "config", ".env"},
			ExpectedFiles:    []string{"configuration.md", "config.json"},
			MinSimilarity:    0.65,
		},
		{
			Query:            "error handling and logging",
			ExpectedKeywords: []string{"error", "exception", "log"},
			ExpectedFiles:    []string{"error-handling.md", "Logger.php"},
			MinSimilarity:    0.65,
		},
		{
			Query:            "REST API endpoints",
			ExpectedKeywords: []string{"endpoint", "request", "response", "route"},
			ExpectedFiles:    []string{"api-reference.md", "routes.php"},
			MinSimilarity:    0.65,
		},
		{
			Query:            "running the test suite",
			ExpectedKeywords: []string{"test", "phpunit", "coverage"},
			ExpectedFiles:    []string{"testing.md", "phpunit.xml.txt"},
			MinSimilarity:    0.65,
		},
		{
			Query:            "caching strategy",
			ExpectedKeywords: []string{"cache", "ttl", "invalidate"},
			ExpectedFiles:    []string{"caching.md", "CacheManager.php"},
			MinSimilarity:    0.65,
		},
	}
}

// goldenFile is the YAML fixture layout.
type goldenFile struct {
	Queries []GoldenQuery `yaml:"queries"`
}

// LoadGoldenQueries parses a YAML fixture of the form
//
//	queries:
//	  - query: deployment process
//	    expected_keywords: [deploy, release]
//	    expected_files: [deployment.md]
//	    min_similarity: 0.7
func LoadGoldenQueries(r io.Reader) ([]GoldenQuery, error) {
	var file goldenFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoGoldenQueries
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidGoldenQuery, err)
	}
	if len(file.Queries) == 0 {
		return nil, ErrNoGoldenQueries
	}
	for _, q := range file.Queries {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Queries, nil
}

// LoadGoldenQueriesFile reads a YAML fixture from path.
func LoadGoldenQueriesFile(path string) ([]GoldenQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadGoldenQueries(f)
}
