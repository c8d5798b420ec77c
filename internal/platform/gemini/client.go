package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"pantrychef/internal/recipe"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// generator is the slice of *genai.GenerativeModel the client depends on.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client is a client for the Gemini API.
type Client struct {
	client *genai.Client
	model  generator
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Client{client: client, model: client.GenerativeModel(modelName)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// GenerateContent sends the prompt followed by the images and returns the
// first non-empty text part of the first candidate.
func (c *Client) GenerateContent(ctx context.Context, prompt string, images []recipe.Image) (string, error) {
	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(prompt))
	for _, img := range images {
		parts = append(parts, genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}

	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", translateError(err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", recipe.ErrEmptyCompletion
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return "", recipe.ErrEmptyCompletion
	}
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok && strings.TrimSpace(string(text)) != "" {
			return string(text), nil
		}
	}
	return "", recipe.ErrEmptyCompletion
}

// translateError maps SDK errors onto the recipe error vocabulary.
func translateError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %v", recipe.ErrEmptyCompletion, blocked)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		body := gErr.Body
		if body == "" {
			body = gErr.Message
		}
		return &recipe.StatusError{StatusCode: gErr.Code, Body: body}
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPCode()
		if code <= 0 {
			code = http.StatusBadGateway
		}
		return &recipe.StatusError{StatusCode: code, Body: apiErr.Error()}
	}

	return err
}
