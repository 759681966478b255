package prompt

import (
	"fmt"
	"strings"
)

// DefaultModelLimit applies to models missing from ModelLimits.
const DefaultModelLimit = 8192

const warnRatio = 0.8

// ModelLimits maps model names to their context window in tokens.
var ModelLimits = map[string]int{
	"gpt-4o":                     128000,
	"gpt-4o-mini":                128000,
	"gpt-4-turbo":                128000,
	"gpt-4":                      8192,
	"gpt-3.5-turbo":              16385,
	"claude-3-5-sonnet-20241022": 200000,
	"claude-3-5-haiku-20241022":  200000,
	"claude-3-opus-20240229":     200000,
	"claude-3-sonnet-20240229":   200000,
	"claude-3-haiku-20240307":    200000,
}

// Validation is the advisory result of ValidatePromptLength.
type Validation struct {
	Valid    bool     `json:"valid"`
	Model    string   `json:"model"`
	Tokens   int      `json:"tokens"`
	Limit    int      `json:"limit"`
	Usage    float64  `json:"usage"`
	Warnings []string `json:"warnings,omitempty"`
}

// LimitFor returns the context window of model.
func LimitFor(model string) int {
	if limit, ok := ModelLimits[strings.ToLower(model)]; ok {
		return limit
	}
	return DefaultModelLimit
}

// ValidatePromptLength compares an estimated token count against the model's
// limit. Above 80% it warns; above 100% it marks the prompt invalid. It never
// blocks anything itself.
func ValidatePromptLength(tokens int, model string) Validation {
	limit := LimitFor(model)
	v := Validation{
		Valid:  true,
		Model:  model,
		Tokens: tokens,
		Limit:  limit,
		Usage:  float64(tokens) / float64(limit),
	}

	switch {
	case tokens > limit:
		v.Valid = false
		v.Warnings = append(v.Warnings, fmt.Sprintf("prompt uses an estimated %d tokens, exceeding the %d token limit of %s", tokens, limit, modelLabel(model)))
	case v.Usage > warnRatio:
		v.Warnings = append(v.Warnings, fmt.Sprintf("prompt uses %.0f%% of the %d token limit of %s", v.Usage*100, limit, modelLabel(model)))
	}
	return v
}

func modelLabel(model string) string {
	if model == "" {
		return "the default model"
	}
	return model
}
