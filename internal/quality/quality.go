// Package quality scores business records for completeness and
// plausibility and strips placeholder values.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// Category buckets a score.
type Category string

const (
	CategoryHigh   Category = "high"
	CategoryMedium Category = "medium"
	CategoryLow    Category = "low"
)

// CategoryFor returns the category of score.
func CategoryFor(score float64) Category {
	switch {
	case score >= 0.8:
		return CategoryHigh
	case score >= 0.5:
		return CategoryMedium
	default:
		return CategoryLow
	}
}

// Penalties subtracted from the 1.0 baseline.
const (
	penaltyName          = 0.25
	penaltyNoContact     = 0.15
	penaltyNoPhone       = 0.05
	penaltyCoordinates   = 0.15
	penaltyStaleLocation = 0.05
	penaltyHours         = 0.10
	penaltyMenu          = 0.10
	penaltyDescription   = 0.05
	penaltyCuisine       = 0.05
	penaltyPlaceholder   = 0.05
)

// StaleLocationAge is how old a location may be before it is penalized.
const StaleLocationAge = 7 * 24 * time.Hour

// Issue is one problem found on a record.
type Issue struct {
	Field   string  `json:"field"`
	Message string  `json:"message"`
	Penalty float64 `json:"penalty"`
}

// Updates is a partial update that clears placeholder fields.
type Updates struct {
	Clear []string `json:"clear,omitempty"`
}

// IsEmpty reports whether there is nothing to apply.
func (u Updates) IsEmpty() bool { return len(u.Clear) == 0 }

// Apply clears every listed field on rec. Cleared list entries and menu
// items left without a name are then dropped.
func (u Updates) Apply(rec *model.BusinessRecord) {
	if u.IsEmpty() {
		return
	}
	for _, f := range u.Clear {
		if field, ok := fieldByName(rec, f); ok {
			*field.ptr = ""
		}
	}
	compact(rec)
}

// Assessment is the result of scoring one record.
type Assessment struct {
	Score    float64  `json:"score"`
	Category Category `json:"category"`
	Issues   []Issue  `json:"issues,omitempty"`
	Updates  Updates  `json:"updates"`
}

// Scorer computes data quality scores.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a Scorer. A nil clock uses time.Now.
func NewScorer(now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{now: now}
}

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bundefined\b`),
	regexp.MustCompile(`(?i)placeholder`),
	regexp.MustCompile(`(?i)example\.com`),
	regexp.MustCompile(`(?i)test truck`),
	regexp.MustCompile(`(?i)lorem ipsum`),
	regexp.MustCompile(`(?i)^\s*n/?a\s*$`),
	regexp.MustCompile(`^[\s0().+\-]*0[\s0().+\-]*$`),
	regexp.MustCompile(`(?i)^\s*null\s*$`),
	regexp.MustCompile(`(?i)\btbd\b`),
	regexp.MustCompile(`(?i)coming soon`),
}

// IsPlaceholder reports whether s matches a known placeholder pattern.
func IsPlaceholder(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, re := range placeholderPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

type textField struct {
	name string
	ptr  *string
}

func textFields(rec *model.BusinessRecord) []textField {
	fields := []textField{
		{"name", &rec.Name},
		{"description", &rec.Description},
		{"contact_info.phone", &rec.ContactInfo.Phone},
		{"contact_info.email", &rec.ContactInfo.Email},
		{"contact_info.website", &rec.ContactInfo.Website},
		{"social_media.instagram", &rec.SocialMedia.Instagram},
		{"social_media.facebook", &rec.SocialMedia.Facebook},
		{"social_media.twitter", &rec.SocialMedia.Twitter},
		{"social_media.tiktok", &rec.SocialMedia.TikTok},
		{"social_media.yelp", &rec.SocialMedia.Yelp},
		{"price_range", &rec.PriceRange},
	}
	if rec.CurrentLocation != nil {
		fields = append(fields, textField{"current_location.address", &rec.CurrentLocation.Address})
	}
	fields = appendList(fields, "cuisine_type", rec.CuisineType)
	fields = appendList(fields, "specialties", rec.Specialties)
	for i := range rec.Menu {
		cat := &rec.Menu[i]
		prefix := fmt.Sprintf("menu[%d]", i)
		fields = append(fields, textField{prefix + ".name", &cat.Name})
		for j := range cat.Items {
			item := &cat.Items[j]
			ip := fmt.Sprintf("%s.items[%d]", prefix, j)
			fields = append(fields,
				textField{ip + ".name", &item.Name},
				textField{ip + ".description", &item.Description},
			)
			fields = appendList(fields, ip+".dietary_tags", item.DietaryTags)
		}
	}
	return fields
}

func appendList(fields []textField, name string, list []string) []textField {
	for i := range list {
		fields = append(fields, textField{fmt.Sprintf("%s[%d]", name, i), &list[i]})
	}
	return fields
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

// compact drops empty list entries and nameless menu items.
func compact(rec *model.BusinessRecord) {
	rec.CuisineType = slices.DeleteFunc(rec.CuisineType, isBlank)
	rec.Specialties = slices.DeleteFunc(rec.Specialties, isBlank)
	for i := range rec.Menu {
		cat := &rec.Menu[i]
		cat.Items = slices.DeleteFunc(cat.Items, func(it model.MenuItem) bool { return isBlank(it.Name) })
		for j := range cat.Items {
			cat.Items[j].DietaryTags = slices.DeleteFunc(cat.Items[j].DietaryTags, isBlank)
		}
	}
}

func fieldByName(rec *model.BusinessRecord, name string) (textField, bool) {
	for _, f := range textFields(rec) {
		if f.name == name {
			return f, true
		}
	}
	return textField{}, false
}

// Score assesses rec without modifying it. Placeholder fields are
// reported in Updates and scored as if they were missing.
func (s *Scorer) Score(rec *model.BusinessRecord) Assessment {
	var a Assessment
	clean := cloneText(rec)

	penalize := func(field, msg string, p float64) {
		a.Issues = append(a.Issues, Issue{Field: field, Message: msg, Penalty: p})
	}

	for _, f := range textFields(clean) {
		if IsPlaceholder(*f.ptr) {
			a.Updates.Clear = append(a.Updates.Clear, f.name)
			*f.ptr = ""
			if f.name != "name" {
				penalize(f.name, "placeholder value", penaltyPlaceholder)
			}
		}
	}

	compact(clean)

	if strings.TrimSpace(clean.Name) == "" {
		penalize("name", "name missing or placeholder", penaltyName)
	}

	if clean.ContactInfo.IsEmpty() {
		penalize("contact_info", "no contact method", penaltyNoContact)
	}
	if clean.ContactInfo.Phone == "" {
		penalize("contact_info.phone", "phone missing", penaltyNoPhone)
	}

	lat, lng, ok := clean.CurrentLocation.Coordinates()
	switch {
	case !ok:
		penalize("current_location", "coordinates missing", penaltyCoordinates)
	case lat < -90 || lat > 90 || lng < -180 || lng > 180:
		penalize("current_location", "coordinates out of range", penaltyCoordinates)
	case lat == 0 && lng == 0:
		penalize("current_location", "coordinates are 0,0", penaltyCoordinates)
	default:
		updated := clean.CurrentLocation.UpdatedAt
		if updated == nil || s.now().Sub(*updated) > StaleLocationAge {
			penalize("current_location.updated_at", "location is stale", penaltyStaleLocation)
		}
	}

	if clean.OperatingHours.IsEmpty() {
		penalize("operating_hours", "operating hours missing", penaltyHours)
	}
	if clean.MenuItemCount() == 0 {
		penalize("menu", "menu empty", penaltyMenu)
	}
	if strings.TrimSpace(clean.Description) == "" {
		penalize("description", "description missing", penaltyDescription)
	}
	if len(clean.CuisineType) == 0 {
		penalize("cuisine_type", "cuisine missing", penaltyCuisine)
	}

	score := 1.0
	for _, is := range a.Issues {
		score -= is.Penalty
	}
	a.Score = math.Round(math.Max(0, score)*1000) / 1000
	a.Category = CategoryFor(a.Score)
	return a
}

// Apply scores rec, clears its placeholder fields, and sets its score.
// Records below flagThreshold are flagged; flagged records that recover
// return to pending.
func (s *Scorer) Apply(rec *model.BusinessRecord, flagThreshold float64) Assessment {
	a := s.Score(rec)
	a.Updates.Apply(rec)
	rec.DataQualityScore = a.Score
	switch {
	case a.Score < flagThreshold:
		rec.VerificationStatus = model.VerificationFlagged
	case rec.VerificationStatus == model.VerificationFlagged || rec.VerificationStatus == "":
		rec.VerificationStatus = model.VerificationPending
	}
	return a
}

// cloneText copies the fields Score mutates while evaluating.
func cloneText(rec *model.BusinessRecord) *model.BusinessRecord {
	c := *rec
	if rec.CurrentLocation != nil {
		loc := *rec.CurrentLocation
		c.CurrentLocation = &loc
	}
	c.CuisineType = slices.Clone(rec.CuisineType)
	c.Specialties = slices.Clone(rec.Specialties)
	if rec.Menu != nil {
		c.Menu = make([]model.MenuCategory, len(rec.Menu))
		for i, cat := range rec.Menu {
			cat.Items = slices.Clone(cat.Items)
			for j := range cat.Items {
				cat.Items[j].DietaryTags = slices.Clone(cat.Items[j].DietaryTags)
			}
			c.Menu[i] = cat
		}
	}
	return &c
}
