package remote

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 30
	idMaxLen       = 256
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func SanitizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < usernameMinLen || len(username) > usernameMaxLen {
		return "", NewValidationError(fmt.Sprintf("username must be %d-%d characters", usernameMinLen, usernameMaxLen))
	}
	if !usernamePattern.MatchString(username) {
		return "", NewValidationError("username may only contain letters, digits, underscore and hyphen")
	}
	return username, nil
}

func SanitizeBookID(bookID string) (string, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return "", NewValidationError("book id must not be empty")
	}
	if len(bookID) > idMaxLen {
		return "", NewValidationError(fmt.Sprintf("book id exceeds %d characters", idMaxLen))
	}
	return bookID, nil
}

func SanitizeChapterSlug(slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if len(slug) > idMaxLen {
		return "", NewValidationError(fmt.Sprintf("chapter slug exceeds %d characters", idMaxLen))
	}
	return slug, nil
}

// ClampProgress forces a scroll position into [0,1].
func ClampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// SanitizeProgress validates and normalizes a progress record before it is
// sent to the backend. Validation failures are never retried or queued.
func SanitizeProgress(p ReadingProgress) (ReadingProgress, error) {
	if p.ID < 0 {
		return p, NewValidationError("progress id must be non-negative")
	}
	if strings.TrimSpace(p.UserID) == "" {
		return p, NewValidationError("user id must not be empty")
	}

	bookID, err := SanitizeBookID(p.BookID)
	if err != nil {
		return p, err
	}
	slug, err := SanitizeChapterSlug(p.LastChapterSlug)
	if err != nil {
		return p, err
	}

	p.UserID = strings.TrimSpace(p.UserID)
	p.BookID = bookID
	p.LastChapterSlug = slug
	p.Progress = ClampProgress(p.Progress)
	if p.ChapterIndex < 0 {
		p.ChapterIndex = 0
	}
	return p, nil
}
