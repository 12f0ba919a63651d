// Package model defines the records moved through the acquisition pipeline.
package model

import (
	"strings"
	"time"
)

// VerificationStatus tracks human/automatic review of a business record.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFlagged  VerificationStatus = "flagged"
)

// Weekdays lists operating-hours keys in display order.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Location is the last known position of a truck.
type Location struct {
	Lat       *float64   `json:"lat,omitempty"`
	Lng       *float64   `json:"lng,omitempty"`
	Address   string     `json:"address,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Coordinates returns lat/lng when both are present.
func (l *Location) Coordinates() (lat, lng float64, ok bool) {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return 0, 0, false
	}
	return *l.Lat, *l.Lng, true
}

// MenuItem is a single menu entry. Price is nil when unknown.
type MenuItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
}

// MenuCategory groups menu items.
type MenuCategory struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// DayHours is the schedule for one weekday.
type DayHours struct {
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
	Closed bool   `json:"closed"`
}

// OperatingHours maps lower-case weekday names to schedules.
type OperatingHours map[string]DayHours

// DefaultOperatingHours returns every weekday marked closed.
func DefaultOperatingHours() OperatingHours {
	h := make(OperatingHours, len(Weekdays))
	for _, d := range Weekdays {
		h[d] = DayHours{Closed: true}
	}
	return h
}

// IsEmpty reports whether no day has open hours.
func (h OperatingHours) IsEmpty() bool {
	for _, d := range h {
		if !d.Closed && d.Open != "" {
			return false
		}
	}
	return true
}

// ContactInfo holds direct contact channels.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// IsEmpty reports whether no contact channel is known.
func (c ContactInfo) IsEmpty() bool {
	return c.Phone == "" && c.Email == "" && c.Website == ""
}

// SocialMedia holds social profile handles or URLs.
type SocialMedia struct {
	Instagram string `json:"instagram,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	Yelp      string `json:"yelp,omitempty"`
}

// BusinessRecord is a persisted food truck. Records are never deleted by
// the pipeline; low quality ones are flagged instead.
type BusinessRecord struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	CurrentLocation    *Location          `json:"current_location,omitempty"`
	Menu               []MenuCategory     `json:"menu,omitempty"`
	OperatingHours     OperatingHours     `json:"operating_hours,omitempty"`
	ContactInfo        ContactInfo        `json:"contact_info"`
	SocialMedia        SocialMedia        `json:"social_media"`
	CuisineType        []string           `json:"cuisine_type,omitempty"`
	Specialties        []string           `json:"specialties,omitempty"`
	PriceRange         string             `json:"price_range,omitempty"`
	DataQualityScore   float64            `json:"data_quality_score"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	SourceURLs         []string           `json:"source_urls"`
	LastScrapedAt      *time.Time         `json:"last_scraped_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// AddSourceURL appends u unless already present. Source URLs are append-only.
func (b *BusinessRecord) AddSourceURL(u string) {
	u = strings.TrimSpace(u)
	if u == "" {
		return
	}
	for _, existing := range b.SourceURLs {
		if existing == u {
			return
		}
	}
	b.SourceURLs = append(b.SourceURLs, u)
}

// MenuItemCount returns the number of items across all categories.
func (b *BusinessRecord) MenuItemCount() int {
	n := 0
	for _, c := range b.Menu {
		n += len(c.Items)
	}
	return n
}
