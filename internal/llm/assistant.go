package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Assistant runs the prompt-driven paper operations against a Client.
// Every method performs exactly one completion attempt; retries are owned
// by the caller.
type Assistant struct {
	client Client
}

// NewAssistant creates an assistant over the given client.
func NewAssistant(client Client) *Assistant {
	return &Assistant{client: client}
}

// Provider returns the underlying provider name.
func (a *Assistant) Provider() string {
	return a.client.Provider()
}

// ScoreRequest contains the inputs for relevance scoring.
type ScoreRequest struct {
	// Query is the research interest the paper is scored against.
	Query string
	// Title is the paper title.
	Title string
	// Abstract is the paper abstract.
	Abstract string
	// Model overrides the client's default model when set.
	Model string
}

// ScoreResult is the outcome of a relevance scoring call.
type ScoreResult struct {
	// Score is the raw relevance score as returned by the model.
	// Callers clamp it into [0, 1] before storing.
	Score float64
	// Justification is the model's one-paragraph explanation.
	Justification string
	// Model is the model that produced the score.
	Model string
}

// scoreResponse is the expected JSON structure for scoring responses.
type scoreResponse struct {
	Score         *float64 `json:"score"`
	Justification string   `json:"justification"`
}

// ScoreRelevance scores how relevant a paper is to the query, in [0, 1].
// A response without a numeric score is a data error: the model answered
// but not in a usable form, so retrying the same inputs will not help.
// Such errors match domain.ErrInvalidScore.
func (a *Assistant) ScoreRelevance(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	var sb strings.Builder
	sb.WriteString("You are a research-paper relevance rater. Given a research interest ")
	sb.WriteString("and a paper, rate how relevant the paper is to the interest.\n\n")
	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"score": 0.0, "justification": "One short paragraph explaining the score"}`)
	sb.WriteString("\n\nThe score is a number between 0.0 (unrelated) and 1.0 (directly on topic).")
	systemPrompt := sb.String()

	userPrompt := fmt.Sprintf(
		"Research interest: %s\n\nPaper title: %s\n\nAbstract:\n---\n%s\n---",
		req.Query, req.Title, req.Abstract,
	)

	resp, err := a.complete(ctx, req.Model, systemPrompt, userPrompt, true)
	if err != nil {
		return nil, err
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("%s: %w: failed to parse score response as JSON: %v",
			a.client.Provider(), domain.ErrInvalidScore, err)
	}
	if parsed.Score == nil {
		return nil, fmt.Errorf("%s: %w: score response contains no score", a.client.Provider(), domain.ErrInvalidScore)
	}

	return &ScoreResult{
		Score:         *parsed.Score,
		Justification: parsed.Justification,
		Model:         resp.Model,
	}, nil
}

// SummarizeRequest contains the inputs for summarization.
type SummarizeRequest struct {
	Title    string
	Abstract string
	Model    string
}

// Summarize produces a short plain-text summary of the paper.
func (a *Assistant) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	systemPrompt := "You are a research assistant. Summarize papers in 3-5 sentences " +
		"for a technical reader. Respond with the summary only, no preamble."
	userPrompt := fmt.Sprintf("Paper title: %s\n\nAbstract:\n---\n%s\n---", req.Title, req.Abstract)

	resp, err := a.complete(ctx, req.Model, systemPrompt, userPrompt, false)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("%s: summarize returned empty content", a.client.Provider())
	}
	return summary, nil
}

// Translate renders the text into the target language.
func (a *Assistant) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	systemPrompt := fmt.Sprintf(
		"You are a technical translator. Translate the user's text into %s, "+
			"preserving terminology. Respond with the translation only.", targetLanguage)

	resp, err := a.complete(ctx, "", systemPrompt, text, false)
	if err != nil {
		return "", err
	}

	translation := strings.TrimSpace(resp.Content)
	if translation == "" {
		return "", fmt.Errorf("%s: translate returned empty content", a.client.Provider())
	}
	return translation, nil
}

// AnalyzeRequest contains the inputs for structured analysis.
type AnalyzeRequest struct {
	Title    string
	Abstract string
	// Summary feeds the already-produced summary into the analysis prompt,
	// when available.
	Summary string
	Model   string
	// Deep asks for the extended analysis used by the deep-analysis flow.
	Deep bool
}

// AnalysisResult is the structured analysis parsed from the model response.
type AnalysisResult struct {
	Background  string   `json:"background"`
	Objectives  string   `json:"objectives"`
	Methods     string   `json:"methods"`
	Findings    string   `json:"findings"`
	Conclusions string   `json:"conclusions"`
	Limitations string   `json:"limitations"`
	FutureWork  string   `json:"future_work"`
	Keywords    []string `json:"keywords"`
}

// Analyze produces a structured analysis of the paper.
func (a *Assistant) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	var sb strings.Builder
	sb.WriteString("You are a research analyst. Produce a structured analysis of the paper.\n\n")
	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"background": "", "objectives": "", "methods": "", "findings": "", "conclusions": "", "limitations": "", "future_work": "", "keywords": []}`)
	sb.WriteString("\n")
	if req.Deep {
		sb.WriteString("\nThis is a deep analysis: be thorough in every field, discuss ")
		sb.WriteString("methodology choices critically, and list 8-12 keywords.")
	} else {
		sb.WriteString("\nKeep each field to 1-3 sentences and list 3-6 keywords.")
	}
	systemPrompt := sb.String()

	var ub strings.Builder
	fmt.Fprintf(&ub, "Paper title: %s\n\nAbstract:\n---\n%s\n---", req.Title, req.Abstract)
	if req.Summary != "" {
		fmt.Fprintf(&ub, "\n\nExisting summary:\n%s", req.Summary)
	}

	maxTokens := 0
	if req.Deep {
		maxTokens = 4096
	}

	resp, err := a.client.Complete(ctx, Request{
		Model: req.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: ub.String()},
		},
		MaxTokens:    maxTokens,
		JSONResponse: true,
	})
	if err != nil {
		return nil, err
	}

	var parsed AnalysisResult
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("%s: failed to parse analysis response as JSON: %w", a.client.Provider(), err)
	}

	return &parsed, nil
}

// complete is the shared single-attempt completion helper.
func (a *Assistant) complete(ctx context.Context, model, systemPrompt, userPrompt string, jsonResponse bool) (*Response, error) {
	return a.client.Complete(ctx, Request{
		Model: model,
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userPrompt},
		},
		JSONResponse: jsonResponse,
	})
}
