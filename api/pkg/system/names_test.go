package system

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "fix-auth-bug", Slugify("Fix Auth Bug", 0))
	assert.Equal(t, "fix-auth-bug", Slugify("  Fix   AUTH -- bug!! ", 0))
	assert.Equal(t, "hello-world", Slugify("hello_world", 0))
	assert.Equal(t, "", Slugify("!!!", 0))
}

func TestSlugifyMaxLen(t *testing.T) {
	slug := Slugify("a very long session name that keeps going and going", 20)
	assert.LessOrEqual(t, len(slug), 20)
	assert.False(t, strings.HasSuffix(slug, "-"))
}

func TestGenerateFallbackName(t *testing.T) {
	name := GenerateFallbackName()
	parts := strings.Split(name, "-")
	assert.Len(t, parts, 3)
	assert.Equal(t, name, Slugify(name, 0))
}

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	assert.True(t, strings.HasPrefix(id, SessionPrefix))
	assert.NotEqual(t, id, GenerateSessionID())
}
