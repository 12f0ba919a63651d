package dedup

import (
	"math"
	"net/url"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// Component weights of the overall similarity.
const (
	weightName     = 0.4
	weightLocation = 0.3
	weightContact  = 0.2
	weightMenu     = 0.1
)

// Similarity is the pairwise comparison of two records. Components that
// could not be compared because a side lacks the data are not Available.
type Similarity struct {
	Name     float64         `json:"name"`
	Location float64         `json:"location"`
	Contact  float64         `json:"contact"`
	Menu     float64         `json:"menu"`
	Overall  float64         `json:"overall"`
	Compared map[string]bool `json:"compared"`
}

// NameSimilarity compares two names after NameKey normalization. A name
// contained in the other scores 0.8 plus up to 0.15 for relative length.
func NameSimilarity(a, b string) float64 {
	a, b = NameKey(a), NameKey(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		short, long := len([]rune(a)), len([]rune(b))
		if short > long {
			short, long = long, short
		}
		return 0.8 + 0.15*float64(short)/float64(long)
	}
	return levenshtein.Similarity(a, b, nil)
}

// AddressSimilarity compares two free-form addresses.
func AddressSimilarity(a, b string) float64 {
	a, b = cleanText(a), cleanText(b)
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceSimilarity is 1 within 100m, falling linearly to 0 at 1km.
func DistanceSimilarity(meters float64) float64 {
	switch {
	case meters <= 100:
		return 1
	case meters >= 1000:
		return 0
	default:
		return 1 - (meters-100)/900
	}
}

// LocationSimilarity averages address and distance similarity over the
// parts both locations have.
func LocationSimilarity(a, b *model.Location) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	var sum float64
	n := 0
	if a.Address != "" && b.Address != "" {
		sum += AddressSimilarity(a.Address, b.Address)
		n++
	}
	lat1, lng1, ok1 := a.Coordinates()
	lat2, lng2, ok2 := b.Coordinates()
	if ok1 && ok2 {
		sum += DistanceSimilarity(HaversineMeters(lat1, lng1, lat2, lng2))
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

func host(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func handle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimPrefix(s, "@")
}

// ContactSimilarity is the fraction of matching channels among those both
// records carry.
func ContactSimilarity(a, b *model.BusinessRecord) (float64, bool) {
	pairs := [][2]string{
		{digits(a.ContactInfo.Phone), digits(b.ContactInfo.Phone)},
		{strings.ToLower(a.ContactInfo.Email), strings.ToLower(b.ContactInfo.Email)},
		{hostOrEmpty(a.ContactInfo.Website), hostOrEmpty(b.ContactInfo.Website)},
		{handle(a.SocialMedia.Instagram), handle(b.SocialMedia.Instagram)},
		{handle(a.SocialMedia.Facebook), handle(b.SocialMedia.Facebook)},
		{handle(a.SocialMedia.Twitter), handle(b.SocialMedia.Twitter)},
		{handle(a.SocialMedia.TikTok), handle(b.SocialMedia.TikTok)},
	}
	compared, matched := 0, 0
	for _, p := range pairs {
		if p[0] == "" || p[1] == "" {
			continue
		}
		compared++
		if p[0] == p[1] {
			matched++
		}
	}
	if compared == 0 {
		return 0, false
	}
	return float64(matched) / float64(compared), true
}

func hostOrEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return host(s)
}

// MenuSimilarity is the Jaccard index of normalized item names.
func MenuSimilarity(a, b []model.MenuCategory) (float64, bool) {
	setA, setB := menuNames(a), menuNames(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0, false
	}
	inter := 0
	for n := range setA {
		if setB[n] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union), true
}

func menuNames(cats []model.MenuCategory) map[string]bool {
	out := make(map[string]bool)
	for _, c := range cats {
		for _, it := range c.Items {
			if n := cleanText(it.Name); n != "" {
				out[n] = true
			}
		}
	}
	return out
}

// Compare scores a against b. Overall is the weighted mean over the
// components both records could be compared on; name is always compared.
func Compare(a, b *model.BusinessRecord) Similarity {
	s := Similarity{
		Name:     NameSimilarity(a.Name, b.Name),
		Compared: map[string]bool{"name": true},
	}
	sum, weights := weightName*s.Name, weightName

	if v, ok := LocationSimilarity(a.CurrentLocation, b.CurrentLocation); ok {
		s.Location = v
		s.Compared["location"] = true
		sum += weightLocation * v
		weights += weightLocation
	}
	if v, ok := ContactSimilarity(a, b); ok {
		s.Contact = v
		s.Compared["contact"] = true
		sum += weightContact * v
		weights += weightContact
	}
	if v, ok := MenuSimilarity(a.Menu, b.Menu); ok {
		s.Menu = v
		s.Compared["menu"] = true
		sum += weightMenu * v
		weights += weightMenu
	}
	s.Overall = sum / weights
	return s
}
