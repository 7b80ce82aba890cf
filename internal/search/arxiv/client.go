// Package arxiv implements the search.Source interface for the arXiv API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
	"github.com/scholarwatch/paper-pipeline-service/internal/search"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (3 requests per second),
	// per arXiv's published API usage policy.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 100

	// SourceName is the identifier tasks use to select this source.
	SourceName = "arxiv"
)

// arxivIDRegex extracts the arXiv ID from the full URL, stripping the
// version suffix. Matches "http://arxiv.org/abs/2301.12345v1" and the older
// "http://arxiv.org/abs/hep-th/9901001v1" form.
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	MaxResults int

	// Enabled indicates whether this source is available to tasks.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the search.Source interface for arXiv.
type Client struct {
	config     Config
	httpClient *search.HTTPClient
}

// Ensure Client implements the Source interface.
var _ search.Source = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := search.NewHTTPClient(search.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *search.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries arXiv for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	startTime := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
	}

	// Parse the Atom XML response (limit body to 10MB).
	var feed atomFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	items := make([]*domain.Item, 0, len(feed.Entries))
	for i := range feed.Entries {
		item := entryToItem(&feed.Entries[i])
		if item != nil {
			items = append(items, item)
		}
	}

	nextOffset := params.Offset + len(items)

	return &search.Result{
		Items:        items,
		TotalResults: feed.TotalResults,
		HasMore:      nextOffset < feed.TotalResults,
		Duration:     time.Since(startTime),
	}, nil
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return SourceName
}

// Enabled returns whether this source is available to tasks.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(params search.Params) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	query := url.Values{}

	searchQuery := "all:" + params.Query
	if params.DateFrom != nil {
		searchQuery += fmt.Sprintf(" AND submittedDate:[%s0000 TO *]", params.DateFrom.Format("20060102"))
	}
	query.Set("search_query", searchQuery)

	maxResults := params.MaxResults
	if maxResults == 0 || maxResults > c.config.MaxResults {
		maxResults = c.config.MaxResults
	}
	query.Set("max_results", strconv.Itoa(maxResults))

	if params.Offset > 0 {
		query.Set("start", strconv.Itoa(params.Offset))
	}

	// Newest submissions first.
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// entryToItem converts an arXiv Atom entry to a domain Item. Entries without
// a usable arXiv ID are dropped.
func entryToItem(entry *atomEntry) *domain.Item {
	if entry == nil {
		return nil
	}

	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return nil
	}

	var publishedAt *time.Time
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			publishedAt = &t
		}
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name != "" {
			authors = append(authors, name)
		}
	}

	category := entry.PrimaryCategory.Term
	if category == "" && len(entry.Categories) > 0 {
		category = entry.Categories[0].Term
	}

	contentURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			contentURL = link.Href
			break
		}
	}
	if contentURL == "" {
		contentURL = "https://arxiv.org/abs/" + arxivID
	}

	return &domain.Item{
		SourceID:    SourceName + ":" + arxivID,
		Title:       normalizeWhitespace(entry.Title),
		Abstract:    normalizeWhitespace(entry.Summary),
		Authors:     authors,
		Category:    category,
		PublishedAt: publishedAt,
		ContentURL:  contentURL,
		Status:      domain.ProcessingStatusPending,
	}
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses whitespace. arXiv titles and
// abstracts carry embedded newlines and indentation.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
