package remote

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeUsername(t *testing.T) {
	got, err := SanitizeUsername("  reader_01  ")
	assert.NoError(t, err)
	assert.Equal(t, "reader_01", got)

	_, err = SanitizeUsername("ab")
	assert.True(t, IsValidation(err))

	_, err = SanitizeUsername(strings.Repeat("a", 31))
	assert.True(t, IsValidation(err))

	_, err = SanitizeUsername("bad name!")
	assert.True(t, IsValidation(err))
}

func TestSanitizeBookID(t *testing.T) {
	_, err := SanitizeBookID("   ")
	assert.True(t, IsValidation(err))

	_, err = SanitizeBookID(strings.Repeat("x", 257))
	assert.True(t, IsValidation(err))

	got, err := SanitizeBookID(" book-1 ")
	assert.NoError(t, err)
	assert.Equal(t, "book-1", got)
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0.0, ClampProgress(-0.5))
	assert.Equal(t, 0.0, ClampProgress(math.NaN()))
	assert.Equal(t, 1.0, ClampProgress(1.5))
	assert.Equal(t, 0.42, ClampProgress(0.42))
}

func TestSanitizeProgress(t *testing.T) {
	p, err := SanitizeProgress(ReadingProgress{
		UserID:       " user-1 ",
		BookID:       "book-1",
		ChapterIndex: -3,
		Progress:     2.0,
	})
	assert.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, 0, p.ChapterIndex)
	assert.Equal(t, 1.0, p.Progress)

	_, err = SanitizeProgress(ReadingProgress{UserID: "", BookID: "book-1"})
	assert.True(t, IsValidation(err))

	_, err = SanitizeProgress(ReadingProgress{UserID: "u", BookID: ""})
	assert.True(t, IsValidation(err))
}
