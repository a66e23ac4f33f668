package models

import "time"

// Artwork is a collection object imported from a museum API.
type Artwork struct {
	Source         string    `json:"source"`
	ExternalID     string    `json:"external_id"`
	Title          string    `json:"title"`
	Artist         string    `json:"artist,omitempty"`
	ArtistNation   string    `json:"artist_nationality,omitempty"`
	DateText       string    `json:"date_text,omitempty"`
	BeginYear      int       `json:"begin_year,omitempty"`
	EndYear        int       `json:"end_year,omitempty"`
	Medium         string    `json:"medium,omitempty"`
	Department     string    `json:"department,omitempty"`
	Culture        string    `json:"culture,omitempty"`
	Classification string    `json:"classification,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	ObjectURL      string    `json:"object_url,omitempty"`
	PublicDomain   bool      `json:"public_domain"`
	Tags           []string  `json:"tags,omitempty"`
	ImportedAt     time.Time `json:"imported_at"`
}

// MetImportSummary counts what happened to each requested Met object.
type MetImportSummary struct {
	Requested int      `json:"requested"`
	Fetched   int      `json:"fetched"`
	Kept      int      `json:"kept"`
	Filtered  int      `json:"filtered"`
	NotFound  int      `json:"not_found"`
	Failed    int      `json:"failed"`
	Stored    int64    `json:"stored"`
	FailedIDs []int    `json:"failed_ids,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}
