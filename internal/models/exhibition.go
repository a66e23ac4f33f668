package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
	StatusUnknown   = "unknown"
)

var ExhibitionStatuses = []string{StatusUpcoming, StatusOngoing, StatusEnded, StatusCancelled, StatusUnknown}

// Exhibition is an exhibition record as authored in the import files.
type Exhibition struct {
	ID             uuid.UUID  `json:"id,omitempty"`
	TitleLocal     string     `json:"title_local"`
	TitleEN        string     `json:"title_en"`
	VenueID        *uuid.UUID `json:"venue_id,omitempty"`
	VenueName      string     `json:"venue_name"`
	VenueCity      string     `json:"venue_city"`
	VenueCountry   string     `json:"venue_country"`
	StartDate      string     `json:"start_date"`
	EndDate        string     `json:"end_date"`
	Description    string     `json:"description"`
	Artists        []string   `json:"artists"`
	ExhibitionType string     `json:"exhibition_type"`
	Status         string     `json:"status"`
	WebsiteURL     string     `json:"website_url"`
	VenueAddress   string     `json:"venue_address"`
	PhoneNumber    string     `json:"phone_number"`
	AdmissionFee   string     `json:"admission_fee"`
	OperatingHours string     `json:"operating_hours"`
	Source         string     `json:"source"`
	SourceURL      string     `json:"source_url"`
}

func (e *Exhibition) Prepare() {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
}

// Title returns the local title, falling back to the English one.
func (e Exhibition) Title() string {
	if e.TitleLocal != "" {
		return e.TitleLocal
	}
	return e.TitleEN
}

// DedupeKey identifies the same exhibition regardless of letter case.
func (e Exhibition) DedupeKey() string {
	return strings.ToLower(strings.TrimSpace(e.Title())) + "|" +
		strings.ToLower(strings.TrimSpace(e.VenueName)) + "|" + e.StartDate
}

// StatusOn derives the status implied by the dates on day.
func (e Exhibition) StatusOn(day time.Time) string {
	start, err1 := time.Parse(DateLayout, e.StartDate)
	end, err2 := time.Parse(DateLayout, e.EndDate)
	if err1 != nil || err2 != nil {
		return StatusUnknown
	}
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case d.Before(start):
		return StatusUpcoming
	case d.After(end):
		return StatusEnded
	default:
		return StatusOngoing
	}
}

// ValidationResult holds what Validate found wrong with one record.
type ValidationResult struct {
	Index    int      `json:"index"`
	Title    string   `json:"title"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (v ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

// ImportSummary is the outcome of an exhibitions import.
type ImportSummary struct {
	Read       int                `json:"read"`
	Invalid    int                `json:"invalid"`
	Duplicates int                `json:"duplicates"`
	Inserted   int                `json:"inserted"`
	DryRun     bool               `json:"dry_run"`
	Problems   []ValidationResult `json:"problems,omitempty"`
}
