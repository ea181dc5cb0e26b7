package system

import (
	"math/rand"
	"strconv"
	"strings"
	"unicode"
)

var adjectives = []string{
	"ambitious",
	"bold",
	"careful",
	"daring",
	"eager",
	"focused",
	"gentle",
	"keen",
	"nimble",
	"patient",
	"quick",
	"steady",
	"tidy",
}

var nouns = []string{
	"attempt",
	"branch",
	"change",
	"draft",
	"effort",
	"experiment",
	"fix",
	"patch",
	"rework",
	"sketch",
	"spike",
	"task",
}

// GenerateFallbackName produces a short readable session name for when no
// naming service is available and the prompt yields nothing usable.
func GenerateFallbackName() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	number := rand.Intn(900) + 100 // random 3 digit number
	return adj + "-" + noun + "-" + strconv.Itoa(number)
}

// Slugify converts a display name into a branch/directory safe name:
// lowercase, runs of non-alphanumerics collapsed to single hyphens,
// trimmed, capped at maxLen. Two display names differing only in case or
// spacing slug to the same value, which is why uniqueness has to be
// resolved on the slug as well as the display name.
func Slugify(name string, maxLen int) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if maxLen > 0 && len(slug) > maxLen {
		slug = strings.Trim(slug[:maxLen], "-")
	}
	return slug
}
