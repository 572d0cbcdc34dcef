package types

import "time"

// Article is a published news story.
// It belongs to one category and is owned by the author who wrote it.
type Article struct {
	// ID is the unique identifier of the article.
	ID int `json:"id" db:"id"`

	// Title is the headline.
	Title string `json:"title" db:"title"`

	// Content holds the full body of the story.
	Content string `json:"content" db:"content"`

	// Thumbnail is an optional media URL shown in listings.
	Thumbnail *string `json:"thumbnail,omitempty" db:"thumbnail"`

	// CategoryID references the category the article is filed under.
	CategoryID int `json:"category_id" db:"category_id"`

	// AuthorID references the account that owns the article.
	AuthorID int `json:"author_id" db:"author_id"`

	// CreatedAt is the timestamp at which the article was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent edit.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ArticleFilter narrows an article listing.
type ArticleFilter struct {
	CategoryID int
	AuthorID   int
}
