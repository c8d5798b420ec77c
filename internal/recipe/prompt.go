package recipe

import (
	"fmt"
	"strings"
)

const basePrompt = `You are a creative and detailed chef. Based on the ingredients shown in the following image(s), write a recipe.

**Formatting and Content Requirements:**
- **Title:** Start with a catchy, descriptive title as a Markdown H1 (# Title).
- **Description:** Follow with a single enticing sentence describing the dish.
- **Ingredients:** Add an "Ingredients" section (## Ingredients) as a bulleted list with precise measurements (e.g. 1 cup, 2 tbsp).
- **Instructions:** Add an "Instructions" section (## Instructions) as a numbered list. Each step should explain how and why, not only what: write "sauté the diced onions in olive oil over medium heat for 5-7 minutes until translucent" rather than "cook onions".
- **Tone:** Be encouraging and clear.
- **Invalid Images:** If the image(s) do not show recognizable food or ingredients, reply with a friendly message explaining that you cannot create a recipe from them.

Your entire response must be Markdown.`

var complexityClauses = map[Complexity]string{
	ComplexitySimple: "The user wants a **simple** recipe. Assume a very basic pantry with only salt, pepper and cooking oil. The steps must be easy for a beginner cook.",
	ComplexityNormal: "The user wants a **normal** recipe. Assume a standard pantry with common staples. The recipe should suit an average home cook.",
	ComplexityExpert: "The user wants an **expert-level** recipe. Assume a well-stocked pantry with a wide range of spices, sauces and flours. Advanced techniques and a gourmet result are welcome; describe the cooking methods in detail.",
}

// BuildPrompt returns the instruction text sent ahead of the image parts.
// Clauses are appended in a fixed order: complexity, dietary, free text.
func BuildPrompt(req GenerationRequest) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if clause, ok := complexityClauses[req.Complexity]; ok {
		b.WriteString("\n\n**Recipe Style:** ")
		b.WriteString(clause)
	}

	if diets := cleanList(req.DietaryPreferences); len(diets) > 0 {
		b.WriteString("\n\n**Dietary Requirements:** ")
		fmt.Fprintf(&b, "The recipe must be suitable for the following dietary preferences: %s. Do not use ingredients that conflict with them.", strings.Join(diets, ", "))
	}

	if other := strings.TrimSpace(req.OtherPreferences); other != "" {
		b.WriteString("\n\n**Additional Preferences:** ")
		fmt.Fprintf(&b, "Take these user preferences into account: %s", other)
	}

	return b.String()
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
