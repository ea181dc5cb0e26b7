package names

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/conductorhq/conductor/api/pkg/system"
)

// promptNameWords caps how many words of the prompt feed the fallback
// display name.
const promptNameWords = 5

// Suggester turns a prompt into a short human-readable session name.
// Implementations typically call out to a model; the zero implementation
// is the deterministic prompt-derived fallback below.
type Suggester interface {
	SuggestName(ctx context.Context, prompt string) (string, error)
}

// SuggestDisplayName asks the suggester for a name and falls back to a
// deterministic prompt-derived name when the suggester is absent, fails,
// or returns nothing usable.
func SuggestDisplayName(ctx context.Context, suggester Suggester, prompt string) string {
	if suggester != nil {
		name, err := suggester.SuggestName(ctx, prompt)
		if err != nil {
			log.Warn().Err(err).Msg("name suggestion failed, using fallback")
		} else if strings.TrimSpace(name) != "" {
			return strings.TrimSpace(name)
		}
	}
	return FallbackDisplayName(prompt)
}

// FallbackDisplayName derives a name from the first few words of the
// prompt, or a generated readable name when the prompt is empty.
func FallbackDisplayName(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) == 0 {
		return system.GenerateFallbackName()
	}
	if len(words) > promptNameWords {
		words = words[:promptNameWords]
	}
	return strings.Join(words, " ")
}
