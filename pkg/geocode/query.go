package geocode

import (
	"regexp"
	"strings"
)

// Query is a truck location cleaned for geocoding.
type Query struct {
	Address string
	// Intersection is set for cross-street locations ("King St & Broad
	// St"), which the Census one-line geocoder cannot match.
	Intersection bool
}

var (
	// Lead-ins trucks put in front of where they park.
	leadInRe = regexp.MustCompile(`(?i)^(?:(?:we're|we are|find us|parked|located|set up|look for us)\s+)?(?:(?:at|on|near|by|in front of|outside(?: of)?|behind|across from)\s+)?(?:(?:the\s+)?corner of\s+)?`)
	parenRe  = regexp.MustCompile(`\([^)]*\)`)
	crossRe  = regexp.MustCompile(`(?i)\s*(?:&|\band\b|\s@\s|/)\s*`)
	numberRe = regexp.MustCompile(`^\d+[A-Za-z]?\s`)
)

// ParseQuery strips truck phrasing and parenthetical notes from a posted
// location and detects cross-street intersections.
func ParseQuery(location string) Query {
	s := parenRe.ReplaceAllString(location, " ")
	s = strings.ReplaceAll(strings.Join(strings.Fields(s), " "), " ,", ",")
	s = leadInRe.ReplaceAllString(s, "")
	s = strings.Trim(s, " ,.;:!-")
	if s == "" {
		return Query{}
	}

	street := s
	if i := strings.IndexByte(s, ','); i >= 0 {
		street = s[:i]
	}
	q := Query{Address: s}
	if numberRe.MatchString(street) {
		return q
	}
	if parts := crossRe.Split(street, 2); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		q.Intersection = true
		q.Address = strings.Replace(s, street, parts[0]+" & "+parts[1], 1)
	}
	return q
}

func (q Query) cacheKey() string {
	return strings.ToLower(q.Address)
}
