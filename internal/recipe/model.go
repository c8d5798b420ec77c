package recipe

import (
	"strings"
	"time"
)

// Complexity selects how ambitious the generated recipe should be.
type Complexity string

const (
	ComplexitySimple Complexity = "Simple"
	ComplexityNormal Complexity = "Normal"
	ComplexityExpert Complexity = "Expert"
)

// ParseComplexity matches a tier name case-insensitively. An empty string
// yields an empty Complexity, which adds no style clause; any other
// unrecognised name falls back to ComplexityNormal.
func ParseComplexity(s string) Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "simple":
		return ComplexitySimple
	case "expert":
		return ComplexityExpert
	default:
		return ComplexityNormal
	}
}

// Image is one decoded image payload forwarded to the model.
type Image struct {
	MIMEType string
	Data     []byte
}

// GenerationRequest is the decoded body of a generate call.
type GenerationRequest struct {
	Images             []Image
	Complexity         Complexity
	DietaryPreferences []string
	OtherPreferences   string
}

// Recipe is a persisted generated recipe.
type Recipe struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Content    string    `json:"content" db:"content"`
	IsFavorite bool      `json:"is_favorite" db:"is_favorite"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Title returns the text of the first level-one markdown heading.
func (r *Recipe) Title() string {
	for _, line := range strings.Split(r.Content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(line[2:]); title != "" {
				return title
			}
		}
	}
	return "Untitled Recipe"
}

// Generation marks one completed generation for quota accounting.
type Generation struct {
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
