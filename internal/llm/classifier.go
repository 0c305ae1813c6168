package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Classifier is the text-in/text-out boundary to the language model
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// ClassifierError is returned for transport failures and timeouts
type ClassifierError struct {
	Provider string
	Err      error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Provider, e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_-]+`)

// MatchLabel maps a free-form model reply onto one of the allowed labels.
// An exact match wins, then the earliest allowed label mentioned in the reply,
// then def.
func MatchLabel(reply string, allowed []string, def string) string {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(reply), "\"'`.。 \n"))
	for _, label := range allowed {
		if cleaned == strings.ToLower(label) {
			return label
		}
	}

	words := wordRe.FindAllString(cleaned, -1)
	for _, w := range words {
		for _, label := range allowed {
			if w == strings.ToLower(label) {
				return label
			}
		}
	}
	return def
}
