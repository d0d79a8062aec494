package remote

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	IsSupporter bool   `json:"is_supporter"`
}

type ReadingProgress struct {
	ID              int64   `json:"id"`
	UserID          string  `json:"user_id"`
	BookID          string  `json:"book_id"`
	LastChapterSlug string  `json:"last_chapter_slug"`
	ChapterIndex    int     `json:"chapter_index"`
	Progress        float64 `json:"progress"`
	UpdatedAt       int64   `json:"updated_at"`
}

// ProgressKey builds the composite cache key for a progress record.
func ProgressKey(userID, bookID string) string {
	return userID + ":" + bookID
}
