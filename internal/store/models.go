package store

import "time"

// User is a registered account. PasswordHash is a bcrypt digest and is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Album groups saved plants for one user.
type Album struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AlbumWithCount is an album plus how many plants it holds.
type AlbumWithCount struct {
	Album
	PlantCount int `json:"plantCount"`
}

// Plant is a saved identification in a user's collection. AlbumID is nil
// for plants outside any album. Image is the external reference picture;
// ScannedImage is the photo the user uploaded.
type Plant struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	AlbumID      *string   `json:"albumId"`
	Species      string    `json:"species"`
	Family       string    `json:"family"`
	Genus        string    `json:"genus"`
	Confidence   int       `json:"confidence"`
	CommonNames  []string  `json:"commonNames"`
	Description  string    `json:"description"`
	Distribution string    `json:"distribution"`
	Image        string    `json:"image"`
	ScannedImage string    `json:"scannedImage"`
	WikiURL      string    `json:"wikiUrl"`
	Notes        string    `json:"notes"`
	Location     string    `json:"location"`
	Tags         []string  `json:"tags"`
	SortOrder    int       `json:"sortOrder"`
	SavedAt      time.Time `json:"savedAt"`
}
