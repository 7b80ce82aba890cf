// Package search provides clients for discovering candidate papers.
//
// Each external database implements the Source interface, letting the
// pipeline's search stage address any configured backend through one API.
// Clients apply rate limiting and bounded retries themselves so the pipeline
// can treat a returned error as already-retried.
package search

import (
	"context"
	"time"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Params defines the parameters for a candidate search.
type Params struct {
	// Query is the search query string (required). The format may vary by
	// source; arXiv supports field prefixes and boolean operators.
	Query string

	// MaxResults limits the number of items returned in a single request.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// Offset specifies the starting position for paginated results.
	Offset int

	// DateFrom filters papers published on or after this date, when set.
	DateFrom *time.Time
}

// Result contains the outcome of one search call.
type Result struct {
	// Items contains the candidate items, already carrying their source
	// identity. May be empty if nothing matched.
	Items []*domain.Item

	// TotalResults is the total number of matches reported by the source,
	// regardless of pagination. May be an estimate.
	TotalResults int

	// HasMore indicates whether additional results are available beyond
	// the current page.
	HasMore bool

	// Duration is the time taken to execute the search, including network
	// latency and response parsing.
	Duration time.Duration
}

// Source is a searchable external paper database.
type Source interface {
	// Search queries the source for items matching the given parameters.
	// Implementations respect context cancellation, apply their own rate
	// limiting, and map responses to domain.Item.
	Search(ctx context.Context, params Params) (*Result, error)

	// Name returns the source identifier used in task configuration
	// (e.g. "arxiv").
	Name() string

	// Enabled returns whether this source is available to tasks.
	Enabled() bool
}
