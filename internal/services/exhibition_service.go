package services

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"sayu-ops/internal/metrics"
	"sayu-ops/internal/models"
	"sayu-ops/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxTitleLength       = 500
	maxDescriptionLength = 2000
	maxVenueNameLength   = 255
	defaultCountry       = "KR"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	unsafeTextPattern = regexp.MustCompile(`(?i)<script|javascript:`)
)

var titleBrackets = [][2]string{
	{"『", "』"},
	{"「", "」"},
	{"<", ">"},
	{"[", "]"},
}

type ExhibitionStore interface {
	ExistingKeys(ctx context.Context, startDates []string) (map[string]bool, error)
	InsertAll(ctx context.Context, exhibitions []models.Exhibition) (int64, error)
}

type VenueLookup interface {
	FindID(ctx context.Context, name, city string) (*uuid.UUID, error)
}

type ExhibitionService struct {
	store  ExhibitionStore
	venues VenueLookup
	log    zerolog.Logger
	now    func() time.Time
}

func NewExhibitionService(store ExhibitionStore, venues VenueLookup, log zerolog.Logger) *ExhibitionService {
	return &ExhibitionService{store: store, venues: venues, log: log, now: time.Now}
}

// CleanTitle strips decoration that crawled titles carry around the actual name.
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	for _, b := range titleBrackets {
		if strings.HasPrefix(s, b[0]) && strings.HasSuffix(s, b[1]) && len(s) > len(b[0])+len(b[1]) {
			s = strings.TrimSpace(s[len(b[0]) : len(s)-len(b[1])])
		}
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "전시:"))
	for _, suffix := range []string{"전시회", "전시"} {
		if trimmed := strings.TrimSpace(strings.TrimSuffix(s, suffix)); trimmed != s && trimmed != "" {
			s = trimmed
			break
		}
	}
	return collapseSpace(s)
}

// CleanText removes markup and entities and collapses whitespace.
func CleanText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return collapseSpace(s)
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// Clean normalises a record in place.
func Clean(e *models.Exhibition) {
	e.TitleLocal = CleanTitle(e.TitleLocal)
	e.TitleEN = CleanTitle(e.TitleEN)
	e.Description = CleanText(e.Description)
	e.VenueName = collapseSpace(e.VenueName)
	e.VenueCity = collapseSpace(e.VenueCity)
	e.VenueAddress = collapseSpace(e.VenueAddress)
	e.StartDate = strings.TrimSpace(e.StartDate)
	e.EndDate = strings.TrimSpace(e.EndDate)
	e.Status = strings.ToLower(strings.TrimSpace(e.Status))
	e.ExhibitionType = strings.TrimSpace(e.ExhibitionType)
	e.WebsiteURL = strings.TrimSpace(e.WebsiteURL)
	e.SourceURL = strings.TrimSpace(e.SourceURL)
	e.PhoneNumber = strings.TrimSpace(e.PhoneNumber)
	e.AdmissionFee = strings.TrimSpace(e.AdmissionFee)
	e.OperatingHours = strings.TrimSpace(e.OperatingHours)
	e.Source = strings.TrimSpace(e.Source)

	e.VenueCountry = strings.ToUpper(strings.TrimSpace(e.VenueCountry))
	if e.VenueCountry == "" {
		e.VenueCountry = defaultCountry
	}

	var artists []string
	for _, a := range e.Artists {
		if a = collapseSpace(a); a != "" {
			artists = append(artists, a)
		}
	}
	e.Artists = artists
}

// Validate checks a cleaned record. An empty status is filled in from the dates on now.
func Validate(e *models.Exhibition, now time.Time) models.ValidationResult {
	res := models.ValidationResult{Title: e.Title()}
	fail := func(format string, args ...any) { res.Errors = append(res.Errors, fmt.Sprintf(format, args...)) }
	warn := func(format string, args ...any) { res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...)) }

	if e.Title() == "" {
		fail("title is required")
	}
	for _, t := range []string{e.TitleLocal, e.TitleEN} {
		if utf8.RuneCountInString(t) > maxTitleLength {
			fail("title longer than %d characters", maxTitleLength)
		}
		if unsafeTextPattern.MatchString(t) {
			fail("title contains script content")
		}
	}
	if e.VenueName == "" {
		fail("venue_name is required")
	} else if utf8.RuneCountInString(e.VenueName) > maxVenueNameLength {
		fail("venue_name longer than %d characters", maxVenueNameLength)
	}
	if utf8.RuneCountInString(e.Description) > maxDescriptionLength {
		fail("description longer than %d characters", maxDescriptionLength)
	}

	start, startErr := parseDate("start_date", e.StartDate)
	end, endErr := parseDate("end_date", e.EndDate)
	if startErr != nil {
		fail("%v", startErr)
	}
	if endErr != nil {
		fail("%v", endErr)
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		fail("end_date %s is before start_date %s", e.EndDate, e.StartDate)
	}

	for _, u := range [][2]string{{"website_url", e.WebsiteURL}, {"source_url", e.SourceURL}} {
		if u[1] != "" && !isHTTPURL(u[1]) {
			fail("%s %q is not an http(s) URL", u[0], u[1])
		}
	}

	derived := e.StatusOn(now)
	switch {
	case e.Status == "":
		e.Status = derived
	case !utils.Contains(models.ExhibitionStatuses, e.Status):
		fail("status %q must be one of %s", e.Status, strings.Join(models.ExhibitionStatuses, ", "))
	case e.Status != models.StatusCancelled && derived != models.StatusUnknown && e.Status != derived:
		warn("status %q does not match dates (%s)", e.Status, derived)
	}

	if len(e.Artists) == 0 {
		warn("no artists listed")
	}
	return res
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse(models.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q is not YYYY-MM-DD", field, value)
	}
	return t, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type ExhibitionImportOptions struct {
	DryRun bool
}

// Import cleans, validates and de-duplicates records, then inserts the remainder in one
// transaction. Rejected records are reported in the summary, never returned as an error.
func (s *ExhibitionService) Import(ctx context.Context, records []models.Exhibition, opts ExhibitionImportOptions) (*models.ImportSummary, error) {
	summary := &models.ImportSummary{Read: len(records), DryRun: opts.DryRun}
	now := s.now()

	seen := make(map[string]bool)
	var accepted []models.Exhibition
	for i := range records {
		e := records[i]
		Clean(&e)
		res := Validate(&e, now)
		res.Index = i

		if !res.Valid() {
			summary.Invalid++
			summary.Problems = append(summary.Problems, res)
			metrics.ExhibitionsImported.WithLabelValues("invalid").Inc()
			s.log.Warn().Int("index", i).Str("title", res.Title).Strs("errors", res.Errors).Msg("exhibition rejected")
			continue
		}
		if len(res.Warnings) > 0 {
			summary.Problems = append(summary.Problems, res)
		}

		key := e.DedupeKey()
		if seen[key] {
			summary.Duplicates++
			metrics.ExhibitionsImported.WithLabelValues("duplicate").Inc()
			continue
		}
		seen[key] = true
		accepted = append(accepted, e)
	}

	if s.store != nil && len(accepted) > 0 {
		existing, err := s.store.ExistingKeys(ctx, startDates(accepted))
		if err != nil {
			return summary, fmt.Errorf("load existing exhibitions: %w", err)
		}
		fresh := accepted[:0]
		for _, e := range accepted {
			if existing[e.DedupeKey()] {
				summary.Duplicates++
				metrics.ExhibitionsImported.WithLabelValues("duplicate").Inc()
				continue
			}
			fresh = append(fresh, e)
		}
		accepted = fresh
	}

	if opts.DryRun || s.store == nil || len(accepted) == 0 {
		s.log.Info().Int("valid", len(accepted)).Bool("dry_run", opts.DryRun).Msg("exhibitions checked")
		return summary, nil
	}

	if s.venues != nil {
		for i := range accepted {
			id, err := s.venues.FindID(ctx, accepted[i].VenueName, accepted[i].VenueCity)
			if err != nil {
				return summary, fmt.Errorf("resolve venue %q: %w", accepted[i].VenueName, err)
			}
			accepted[i].VenueID = id
		}
	}

	inserted, err := s.store.InsertAll(ctx, accepted)
	if err != nil {
		return summary, err
	}
	summary.Inserted = int(inserted)
	summary.Duplicates += len(accepted) - int(inserted)
	metrics.ExhibitionsImported.WithLabelValues("inserted").Add(float64(inserted))
	s.log.Info().Int64("inserted", inserted).Msg("exhibitions imported")
	return summary, nil
}

func startDates(exhibitions []models.Exhibition) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, e := range exhibitions {
		if !seen[e.StartDate] {
			seen[e.StartDate] = true
			dates = append(dates, e.StartDate)
		}
	}
	return dates
}
