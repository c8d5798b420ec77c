package recipe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxDetailBody = 2048

// Model is the multimodal completion endpoint.
type Model interface {
	GenerateContent(ctx context.Context, prompt string, images []Image) (string, error)
}

// Recorder persists the outcome of a generation.
type Recorder interface {
	InsertGeneration(ctx context.Context, g Generation) error
	InsertRecipe(ctx context.Context, r *Recipe) error
}

// Preprocessor rewrites an image before it is forwarded.
type Preprocessor interface {
	Process(img Image) Image
}

// Archiver keeps a copy of an uploaded image.
type Archiver interface {
	Put(ctx context.Context, userID string, img Image) (string, error)
}

// GeneratorConfig bounds a single generation.
type GeneratorConfig struct {
	MaxImages int
	Timeout   time.Duration
}

// Generator runs validate, model call and persistence for one request.
type Generator struct {
	model        Model
	recorder     Recorder
	cfg          GeneratorConfig
	preprocessor Preprocessor
	archiver     Archiver
	now          func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithPreprocessor sets the image preprocessor.
func WithPreprocessor(p Preprocessor) Option {
	return func(g *Generator) { g.preprocessor = p }
}

// WithArchiver sets where uploaded images are archived.
func WithArchiver(a Archiver) Option {
	return func(g *Generator) { g.archiver = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a Generator.
func NewGenerator(model Model, recorder Recorder, cfg GeneratorConfig, opts ...Option) *Generator {
	g := &Generator{model: model, recorder: recorder, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Validate checks the request shape.
func (g *Generator) Validate(req GenerationRequest) error {
	if len(req.Images) == 0 {
		return Invalid("No images provided.")
	}
	if g.cfg.MaxImages > 0 && len(req.Images) > g.cfg.MaxImages {
		return Invalid("Too many images; at most %d are allowed.", g.cfg.MaxImages)
	}
	for i, img := range req.Images {
		if strings.TrimSpace(img.MIMEType) == "" {
			return Invalid("Image %d is missing a MIME type.", i+1)
		}
		if len(img.Data) == 0 {
			return Invalid("Image %d has no data.", i+1)
		}
	}
	return nil
}

// Generate produces recipe text for userID. Persistence failures after a
// successful completion are logged and do not fail the call.
func (g *Generator) Generate(ctx context.Context, userID string, req GenerationRequest) (string, error) {
	if err := g.Validate(req); err != nil {
		return "", err
	}

	images := req.Images
	if g.preprocessor != nil {
		images = make([]Image, len(req.Images))
		for i, img := range req.Images {
			images[i] = g.preprocessor.Process(img)
		}
	}

	prompt := BuildPrompt(req)

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	text, err := g.model.GenerateContent(callCtx, prompt, images)
	if err != nil {
		return "", classifyModelError(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindUpstreamParse, Message: "Could not parse recipe from AI response.", Err: ErrEmptyCompletion}
	}

	// The caller may already be gone; bookkeeping still runs.
	persistCtx := context.WithoutCancel(ctx)
	now := g.now().UTC()
	logger := log.WithField("user_id", userID)

	if errGen := g.recorder.InsertGeneration(persistCtx, Generation{UserID: userID, CreatedAt: now}); errGen != nil {
		logger.WithError(errGen).WithField("kind", KindPersistenceWarning).Warn("failed to log recipe generation")
	}

	rec := &Recipe{ID: uuid.NewString(), UserID: userID, Content: text, CreatedAt: now}
	if errRec := g.recorder.InsertRecipe(persistCtx, rec); errRec != nil {
		logger.WithError(errRec).WithField("kind", KindPersistenceWarning).Warn("failed to save recipe")
	}

	if g.archiver != nil {
		for _, img := range req.Images {
			location, errPut := g.archiver.Put(persistCtx, userID, img)
			if errPut != nil {
				logger.WithError(errPut).WithField("kind", KindPersistenceWarning).Warn("failed to archive image")
				continue
			}
			logger.WithField("location", location).Debug("archived image")
		}
	}

	return text, nil
}

func classifyModelError(err error) error {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		body := statusErr.Body
		if len(body) > maxDetailBody {
			body = body[:maxDetailBody]
		}
		return &Error{
			Kind:    KindUpstream,
			Message: "AI service error.",
			Details: map[string]any{"status": statusErr.StatusCode, "body": body},
			Err:     err,
		}
	case errors.Is(err, ErrEmptyCompletion):
		return &Error{Kind: KindUpstreamParse, Message: "Could not parse recipe from AI response.", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindUpstream, Message: "AI service timed out.", Err: err}
	default:
		return &Error{Kind: KindUpstream, Message: "AI service request failed.", Err: err}
	}
}
