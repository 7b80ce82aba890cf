// Package publish uploads finished paper documents to the external
// knowledge base.
//
// The publisher performs exactly one upload attempt per call and reports
// failures as *domain.ExternalAPIError so the caller's retry policy can
// distinguish transient outages from rejected documents.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

const (
	// sourceName identifies the knowledge base in error messages.
	sourceName = "knowledge-base"

	// defaultTimeout is the default per-upload timeout.
	defaultTimeout = 30 * time.Second
)

// Receipt is the acknowledgement returned by a successful upload.
type Receipt struct {
	// RemoteID is the document identifier assigned by the knowledge base.
	RemoteID string
	// ContentBytes is the size of the uploaded document body.
	ContentBytes int
	// UploadedAt is when the upload succeeded.
	UploadedAt time.Time
}

// Publisher uploads documents to the knowledge base.
type Publisher interface {
	// Publish uploads the document rendered from the item.
	Publish(ctx context.Context, item *domain.Item) (*Receipt, error)
}

// Config holds the knowledge-base client settings.
type Config struct {
	// BaseURL is the knowledge-base API base URL.
	BaseURL string
	// APIKey authenticates uploads.
	APIKey string
	// Timeout is the per-upload timeout.
	Timeout time.Duration
}

// uploadRequest is the knowledge-base document upload payload.
type uploadRequest struct {
	ExternalID string   `json:"external_id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
}

// uploadResponse is the knowledge-base upload acknowledgement.
type uploadResponse struct {
	ID string `json:"id"`
}

// Client is the HTTP implementation of Publisher.
type Client struct {
	httpClient *http.Client
	config     Config
}

// Ensure Client implements the Publisher interface.
var _ Publisher = (*Client)(nil)

// New creates a new knowledge-base publish client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// Publish renders the item into a document and uploads it.
func (c *Client) Publish(ctx context.Context, item *domain.Item) (*Receipt, error) {
	if item == nil || !item.HasIdentity() {
		return nil, domain.NewValidationError("item", "item with identity is required")
	}

	content := RenderDocument(item)

	payload := uploadRequest{
		ExternalID: item.SourceID,
		Title:      item.Title,
		Content:    content,
	}
	if item.Category != "" {
		payload.Tags = []string{item.Category}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upload payload: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/documents"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewExternalAPIError(sourceName, 0, "failed to read response body", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(respBody), nil)
	}

	var ack uploadResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return nil, fmt.Errorf("failed to parse upload acknowledgement: %w", err)
	}
	if ack.ID == "" {
		return nil, fmt.Errorf("upload acknowledgement carries no document ID")
	}

	return &Receipt{
		RemoteID:     ack.ID,
		ContentBytes: len(content),
		UploadedAt:   time.Now().UTC(),
	}, nil
}

// RenderDocument renders the item's pipeline outputs into the Markdown
// document stored in the knowledge base.
func RenderDocument(item *domain.Item) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", item.Title)
	if len(item.Authors) > 0 {
		fmt.Fprintf(&sb, "**Authors:** %s\n\n", strings.Join(item.Authors, ", "))
	}
	if item.PublishedAt != nil {
		fmt.Fprintf(&sb, "**Published:** %s\n\n", item.PublishedAt.Format("2006-01-02"))
	}
	if item.ContentURL != "" {
		fmt.Fprintf(&sb, "**Source:** %s\n\n", item.ContentURL)
	}
	if item.RelevanceScore != nil {
		fmt.Fprintf(&sb, "**Relevance:** %.3f", *item.RelevanceScore)
		if item.RelevanceJustification != "" {
			fmt.Fprintf(&sb, " (%s)", item.RelevanceJustification)
		}
		sb.WriteString("\n\n")
	}
	if item.Summary != "" {
		fmt.Fprintf(&sb, "## Summary\n\n%s\n\n", item.Summary)
	}
	if item.Translation != "" {
		fmt.Fprintf(&sb, "## Translation\n\n%s\n\n", item.Translation)
	}
	if !item.Analysis.Empty() {
		sb.WriteString("## Analysis\n\n")
		writeAnalysisSection(&sb, "Background", item.Analysis.Background)
		writeAnalysisSection(&sb, "Objectives", item.Analysis.Objectives)
		writeAnalysisSection(&sb, "Methods", item.Analysis.Methods)
		writeAnalysisSection(&sb, "Findings", item.Analysis.Findings)
		writeAnalysisSection(&sb, "Conclusions", item.Analysis.Conclusions)
		writeAnalysisSection(&sb, "Limitations", item.Analysis.Limitations)
		writeAnalysisSection(&sb, "Future Work", item.Analysis.FutureWork)
		if len(item.Analysis.Keywords) > 0 {
			fmt.Fprintf(&sb, "**Keywords:** %s\n\n", strings.Join(item.Analysis.Keywords, ", "))
		}
	}
	if item.Abstract != "" {
		fmt.Fprintf(&sb, "## Abstract\n\n%s\n", item.Abstract)
	}

	return sb.String()
}

func writeAnalysisSection(sb *strings.Builder, heading, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(sb, "### %s\n\n%s\n\n", heading, text)
}
