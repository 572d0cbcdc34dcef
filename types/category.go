package types

import "time"

// Category groups articles under a named section of the site.
type Category struct {
	// ID is the unique identifier of the category.
	ID int `json:"id" db:"id"`

	// Name is the unique, human-readable label.
	Name string `json:"name" db:"name"`

	// Description is an optional blurb shown on the section page.
	Description string `json:"description" db:"description"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
