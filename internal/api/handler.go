package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pantrychef/internal/auth"
	"pantrychef/internal/quota"
	"pantrychef/internal/recipe"
)

const storeTimeout = 5 * time.Second

// Generator turns a decoded request into recipe text.
type Generator interface {
	Generate(ctx context.Context, userID string, req recipe.GenerationRequest) (string, error)
}

// RecipeStore defines the recipe read and update operations.
type RecipeStore interface {
	ListRecipes(ctx context.Context, userID string) ([]*recipe.Recipe, error)
	GetRecipe(ctx context.Context, userID, id string) (*recipe.Recipe, error)
	ToggleFavorite(ctx context.Context, userID, id string) (bool, error)
	DeleteRecipe(ctx context.Context, userID, id string) error
}

// Handler handles HTTP requests.
type Handler struct {
	Generator   Generator
	Limiter     quota.Limiter
	RecipeStore RecipeStore
}

// NewHandler creates a new Handler.
func NewHandler(generator Generator, limiter quota.Limiter, recipeStore RecipeStore) *Handler {
	return &Handler{Generator: generator, Limiter: limiter, RecipeStore: recipeStore}
}

// GenerateRecipe checks the caller's quota, decodes the images and returns
// the generated recipe.
func (h *Handler) GenerateRecipe(c *gin.Context) {
	userID := auth.UserID(c)
	ctx := c.Request.Context()

	reservation, err := h.Limiter.Acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, quota.ErrExceeded) {
			writeError(c, &recipe.Error{
				Kind:    recipe.KindQuotaExceeded,
				Message: fmt.Sprintf("You have reached your daily limit of %d recipes.", h.Limiter.Limit()),
			})
			return
		}
		writeError(c, &recipe.Error{Kind: recipe.KindInternal, Message: "Could not check daily usage.", Err: err})
		return
	}

	req, err := decodeGenerationRequest(c)
	if err != nil {
		reservation.Release(context.WithoutCancel(ctx))
		writeError(c, err)
		return
	}

	text, err := h.Generator.Generate(ctx, userID, req)
	if err != nil {
		reservation.Release(context.WithoutCancel(ctx))
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipe": text})
}

type recipeResponse struct {
	*recipe.Recipe
	Title string `json:"title"`
}

func newRecipeResponse(r *recipe.Recipe) recipeResponse {
	return recipeResponse{Recipe: r, Title: r.Title()}
}

// ListRecipes returns the caller's recipes, newest first.
func (h *Handler) ListRecipes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	recipes, err := h.RecipeStore.ListRecipes(ctx, auth.UserID(c))
	if err != nil {
		writeError(c, &recipe.Error{Kind: recipe.KindInternal, Message: "Failed to fetch recipes.", Err: err})
		return
	}

	out := make([]recipeResponse, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, newRecipeResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// GetRecipe returns a single recipe of the caller.
func (h *Handler) GetRecipe(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	r, err := h.RecipeStore.GetRecipe(ctx, auth.UserID(c), id)
	if err != nil {
		writeStoreError(c, err, "Failed to fetch recipe.")
		return
	}
	c.JSON(http.StatusOK, newRecipeResponse(r))
}

// ToggleFavorite flips the favorite flag of a recipe.
func (h *Handler) ToggleFavorite(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	favorite, err := h.RecipeStore.ToggleFavorite(ctx, auth.UserID(c), id)
	if err != nil {
		writeStoreError(c, err, "Failed to update favorite status.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_favorite": favorite})
}

// DeleteRecipe removes a recipe of the caller.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	id, ok := recipeID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	if err := h.RecipeStore.DeleteRecipe(ctx, auth.UserID(c), id); err != nil {
		writeStoreError(c, err, "Failed to delete recipe.")
		return
	}
	c.Status(http.StatusNoContent)
}

// Usage reports how many generations the caller has left today.
func (h *Handler) Usage(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	usage, err := h.Limiter.Usage(ctx, auth.UserID(c))
	if err != nil {
		writeError(c, &recipe.Error{Kind: recipe.KindInternal, Message: "Could not check daily usage.", Err: err})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func recipeID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, &recipe.Error{Kind: recipe.KindNotFound, Message: "Recipe not found."})
		return "", false
	}
	return id, true
}

func writeStoreError(c *gin.Context, err error, message string) {
	if errors.Is(err, recipe.ErrNotFound) {
		writeError(c, &recipe.Error{Kind: recipe.KindNotFound, Message: "Recipe not found."})
		return
	}
	writeError(c, &recipe.Error{Kind: recipe.KindInternal, Message: message, Err: err})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind recipe.Kind) int {
	switch kind {
	case recipe.KindUnauthenticated:
		return http.StatusUnauthorized
	case recipe.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case recipe.KindInvalidInput:
		return http.StatusBadRequest
	case recipe.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	var appErr *recipe.Error
	if !errors.As(err, &appErr) {
		appErr = &recipe.Error{Kind: recipe.KindInternal, Message: "Internal server error.", Err: err}
	}

	status := statusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		log.WithError(err).WithFields(log.Fields{
			"kind":    appErr.Kind,
			"user_id": auth.UserID(c),
		}).Error("api: request failed")
	}

	body := gin.H{"error": appErr.Message}
	if appErr.Details != nil {
		body["details"] = appErr.Details
	}
	c.AbortWithStatusJSON(status, body)
}
