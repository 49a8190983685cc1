package relevance

import (
	"errors"
	"fmt"

	"github.com/poiesic/kbsearch/core"
)

var (
	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrInvalidGoldenQuery is returned when a golden query fixture is malformed.
	ErrInvalidGoldenQuery = fmt.Errorf("%w: invalid golden query", core.ErrValidation)

	// ErrNoGoldenQueries is returned when a fixture holds no queries.
	ErrNoGoldenQueries = fmt.Errorf("%w: no golden queries", core.ErrValidation)
)
