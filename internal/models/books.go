package models

import "time"

// Book is a catalog entry. ContentLink points at the readable document or the
// video; DownloadURL is only handed to premium subscribers.
type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Summary     string    `json:"summary"`
	ImageURL    *string   `json:"image_url,omitempty"`
	ContentLink *string   `json:"-"`
	DownloadURL *string   `json:"-"`
	Benefits    *string   `json:"benefits,omitempty"`
	Area        *string   `json:"area,omitempty"`
	HasDownload bool      `json:"has_download"`
	CreatedAt   time.Time `json:"created_at"`
}

// BookFilter narrows catalog listings.
type BookFilter struct {
	Area   string
	Search string
	Limit  int
	Offset int
}

// AreaCount is a catalog area with the number of books filed under it.
type AreaCount struct {
	Area  string `json:"area"`
	Books int    `json:"books"`
}
