package catalog

import "time"

// Book is a catalog entry. The engine only reads books; writes come from
// the admin/import flows outside the recommendation core.
type Book struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Description  string    `json:"description,omitempty"`
	Genres       string    `json:"genres,omitempty"`
	AvgRating    float64   `json:"avg_rating"`
	RatingsCount int       `json:"ratings_count"`
	Year         int       `json:"year,omitempty"`
	Language     string    `json:"language,omitempty"`
	Source       string    `json:"source,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EmbeddingText builds the textual representation that gets embedded,
// "<title> by <author>. <description>", omitting the description when empty.
func (b *Book) EmbeddingText() string {
	text := b.Title + " by " + b.Author
	if b.Description != "" {
		text += ". " + b.Description
	}
	return text
}

// User identifies a rater. Only the id participates in the rating matrix.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Rating is one user's rating of one book, in [1,5].
type Rating struct {
	UserID    int64     `json:"user_id"`
	BookID    int64     `json:"book_id"`
	Value     float64   `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}
