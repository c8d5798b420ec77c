// Package geminirest talks to the Gemini generateContent REST endpoint
// directly, without the SDK.
package geminirest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"pantrychef/internal/recipe"
)

const (
	// DefaultBaseURL is the public Generative Language API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is used when no model name is configured.
	DefaultModel = "gemini-2.5-flash"

	maxErrorBody = 4096
)

// Client represents a client for the Gemini REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

// NewClient creates a new REST client. Empty baseURL or model select the
// defaults.
func NewClient(apiKey, model, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
	}
}

// Request represents the request body for generateContent.
type Request struct {
	Contents []Content `json:"contents"`
}

// Content represents one turn of the conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either text or inline binary data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// InlineData carries a base64 encoded payload.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Response represents the response from generateContent.
type Response struct {
	Candidates []Candidate `json:"candidates"`
}

// Candidate represents one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GenerateContent sends the prompt and images and returns the first text part.
func (c *Client) GenerateContent(ctx context.Context, prompt string, images []recipe.Image) (string, error) {
	parts := make([]Part, 0, len(images)+1)
	parts = append(parts, Part{Text: prompt})
	for _, img := range images {
		parts = append(parts, Part{InlineData: &InlineData{
			MIMEType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	reqBytes, err := json.Marshal(Request{Contents: []Content{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &recipe.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var genResp Response
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decode response body: %v", recipe.ErrEmptyCompletion, err)
	}

	if len(genResp.Candidates) > 0 {
		for _, part := range genResp.Candidates[0].Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text, nil
			}
		}
	}

	return "", recipe.ErrEmptyCompletion
}
