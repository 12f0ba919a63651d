package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// Payload is the typed result of an extraction. The concrete type is
// determined by Kind.
type Payload interface {
	Kind() Kind
}

// MenuPayload is a categorized menu.
type MenuPayload struct {
	Categories []model.MenuCategory `json:"categories"`
}

// LocationPayload is a parsed truck location.
type LocationPayload struct {
	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	ZipCode    string   `json:"zip_code,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	Confidence float64  `json:"confidence"`
	Landmarks  []string `json:"landmarks,omitempty"`
}

// FullAddress joins the address parts that are present.
func (l LocationPayload) FullAddress() string {
	var parts []string
	for _, p := range []string{l.Address, l.City, strings.TrimSpace(l.State + " " + l.ZipCode)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// HoursPayload is a weekly schedule. Days not mentioned are closed.
type HoursPayload struct {
	Hours model.OperatingHours `json:"hours"`
}

// SentimentPayload scores a review. Score and aspects are in [0,1].
type SentimentPayload struct {
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Aspects    map[string]float64 `json:"aspects,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Keywords   []string           `json:"keywords,omitempty"`
}

// TruckData is the truck profile shared by enhance and full extraction.
type TruckData struct {
	Name           string               `json:"name,omitempty"`
	Description    string               `json:"description,omitempty"`
	CuisineType    []string             `json:"cuisine_type,omitempty"`
	PriceRange     string               `json:"price_range,omitempty"`
	Contact        model.ContactInfo    `json:"contact"`
	SocialMedia    model.SocialMedia    `json:"social_media"`
	Location       *LocationPayload     `json:"location,omitempty"`
	OperatingHours model.OperatingHours `json:"operating_hours,omitempty"`
	Menu           []model.MenuCategory `json:"menu,omitempty"`
	Specialties    []string             `json:"specialties,omitempty"`
	DietaryOptions []string             `json:"dietary_options,omitempty"`
}

// EnhancePayload is a standardized version of an existing record.
type EnhancePayload struct {
	TruckData
}

// FullExtractionPayload is everything extracted from one page.
type FullExtractionPayload struct {
	TruckData
	SourceURL string `json:"source_url,omitempty"`
}

func (MenuPayload) Kind() Kind           { return KindMenu }
func (LocationPayload) Kind() Kind       { return KindLocation }
func (HoursPayload) Kind() Kind          { return KindHours }
func (SentimentPayload) Kind() Kind      { return KindSentiment }
func (EnhancePayload) Kind() Kind        { return KindEnhance }
func (FullExtractionPayload) Kind() Kind { return KindFullExtraction }

// ErrInvalidPayload is returned when a decoded value fails validation.
var ErrInvalidPayload = eris.New("invalid payload")

// validator accumulates warnings for optional values it had to drop.
type validator struct {
	warnings []string
}

func (v *validator) warn(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return eris.Wrapf(ErrInvalidPayload, format, args...)
}

// Validate checks a decoded JSON value against kind's schema and builds
// the typed payload. Optional values with the wrong type or range are
// dropped and reported as warnings; structural problems are errors.
func Validate(kind Kind, raw any, sourceURL string) (Payload, []string, error) {
	v := &validator{}
	var (
		p   Payload
		err error
	)
	switch kind {
	case KindMenu:
		p, err = v.menuPayload(raw)
	case KindLocation:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, invalid("location: expected object, got %T", raw)
		}
		loc := v.location(obj)
		p = *loc
	case KindHours:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, nil, invalid("hours: expected object, got %T", raw)
		}
		p = HoursPayload{Hours: v.hours(obj)}
	case KindSentiment:
		p, err = v.sentiment(raw)
	case KindEnhance:
		var t *TruckData
		t, err = v.truck(raw)
		if err == nil {
			p = EnhancePayload{TruckData: *t}
		}
	case KindFullExtraction:
		var t *TruckData
		t, err = v.truck(raw)
		if err == nil {
			p = FullExtractionPayload{TruckData: *t, SourceURL: sourceURL}
		}
	default:
		return nil, nil, invalid("unknown kind %q", kind)
	}
	if err != nil {
		return nil, v.warnings, err
	}
	return p, v.warnings, nil
}

func (v *validator) menuPayload(raw any) (Payload, error) {
	switch t := raw.(type) {
	case []any:
		return MenuPayload{Categories: v.menu(t)}, nil
	case map[string]any:
		// Some responses wrap the list: {"menu": [...]} or {"categories": [...]}.
		for _, key := range []string{"menu", "categories", "menu_categories"} {
			if list, ok := t[key].([]any); ok {
				return MenuPayload{Categories: v.menu(list)}, nil
			}
		}
		return nil, invalid("menu: object without a category list")
	default:
		return nil, invalid("menu: expected array, got %T", raw)
	}
}

// menu validates a category list. Items without a name are dropped.
func (v *validator) menu(list []any) []model.MenuCategory {
	var out []model.MenuCategory
	for i, rc := range list {
		obj, ok := rc.(map[string]any)
		if !ok {
			v.warn("menu[%d]: expected object", i)
			continue
		}
		cat := model.MenuCategory{Name: str(obj["category"])}
		if cat.Name == "" {
			cat.Name = str(obj["name"])
		}
		if cat.Name == "" {
			cat.Name = "Main Items"
		}
		items, _ := obj["items"].([]any)
		for j, ri := range items {
			io, ok := ri.(map[string]any)
			if !ok {
				v.warn("menu[%d].items[%d]: expected object", i, j)
				continue
			}
			item := model.MenuItem{
				Name:        str(io["name"]),
				Description: str(io["description"]),
				DietaryTags: strs(io["dietary_tags"]),
			}
			if item.Name == "" {
				v.warn("menu[%d].items[%d]: missing name", i, j)
				continue
			}
			if price, ok := parsePrice(io["price"]); ok {
				item.Price = &price
			} else if io["price"] != nil {
				v.warn("menu[%d].items[%d]: unparseable price %v", i, j, io["price"])
			}
			cat.Items = append(cat.Items, item)
		}
		if len(cat.Items) > 0 {
			out = append(out, cat)
		}
	}
	return out
}

func (v *validator) location(obj map[string]any) *LocationPayload {
	loc := &LocationPayload{
		Address:   str(obj["address"]),
		City:      str(obj["city"]),
		State:     str(obj["state"]),
		ZipCode:   firstStr(obj["zip_code"], obj["zipCode"]),
		Landmarks: strs(obj["landmarks"]),
	}

	coords, _ := obj["coordinates"].(map[string]any)
	if coords == nil {
		coords = obj
	}
	lat, latOK := num(coords["lat"])
	lng, lngOK := num(coords["lng"])
	switch {
	case !latOK || !lngOK:
	case lat < -90 || lat > 90:
		v.warn("location: latitude %v out of range", lat)
	case lng < -180 || lng > 180:
		v.warn("location: longitude %v out of range", lng)
	default:
		loc.Lat, loc.Lng = &lat, &lng
	}

	if c, ok := num(obj["confidence"]); ok {
		if c < 0 || c > 1 {
			v.warn("location: confidence %v out of range", c)
		} else {
			loc.Confidence = c
		}
	}
	return loc
}

var dayAliases = map[string]string{
	"mon": "monday", "tue": "tuesday", "tues": "tuesday", "wed": "wednesday",
	"thu": "thursday", "thur": "thursday", "thurs": "thursday", "fri": "friday",
	"sat": "saturday", "sun": "sunday",
}

func weekday(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, d := range model.Weekdays {
		if key == d {
			return d, true
		}
	}
	d, ok := dayAliases[key]
	return d, ok
}

// hours builds a full week. Unknown keys and days with invalid times are
// reported; missing days default to closed.
func (v *validator) hours(obj map[string]any) model.OperatingHours {
	out := model.DefaultOperatingHours()
	for key, raw := range obj {
		day, ok := weekday(key)
		if !ok {
			v.warn("hours: unknown day %q", key)
			continue
		}
		d, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if closed, _ := d["closed"].(bool); closed {
			out[day] = model.DayHours{Closed: true}
			continue
		}
		open, okOpen := normalizeClock(str(d["open"]))
		closeAt, okClose := normalizeClock(str(d["close"]))
		if !okOpen || !okClose {
			if d["open"] != nil || d["close"] != nil {
				v.warn("hours: %s has invalid times %v-%v", day, d["open"], d["close"])
			}
			continue
		}
		out[day] = model.DayHours{Open: open, Close: closeAt}
	}
	return out
}

var clockRe = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*([ap])?\.?\s*m?\.?$`)

// normalizeClock converts "9:00", "9am" or "21:30" to 24-hour "HH:MM".
func normalizeClock(s string) (string, bool) {
	m := clockRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return "", false
	}
	h, _ := strconv.Atoi(m[1])
	mins := 0
	if m[2] != "" {
		mins, _ = strconv.Atoi(m[2])
	} else if m[3] == "" {
		// A bare number is not a time.
		return "", false
	}
	if mins > 59 {
		return "", false
	}
	switch m[3] {
	case "":
		if h > 23 {
			return "", false
		}
	case "a", "p":
		if h < 1 || h > 12 {
			return "", false
		}
		h %= 12
		if m[3] == "p" {
			h += 12
		}
	}
	return fmt.Sprintf("%02d:%02d", h, mins), true
}

func (v *validator) sentiment(raw any) (Payload, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("sentiment: expected object, got %T", raw)
	}
	score, ok := num(obj["score"])
	if !ok {
		return nil, invalid("sentiment: missing score")
	}
	if score < 0 || score > 1 {
		return nil, invalid("sentiment: score %v out of range", score)
	}
	p := SentimentPayload{
		Score:    score,
		Summary:  str(obj["summary"]),
		Keywords: strs(obj["keywords"]),
	}
	if c, ok := num(obj["confidence"]); ok && c >= 0 && c <= 1 {
		p.Confidence = c
	} else if obj["confidence"] != nil {
		v.warn("sentiment: confidence %v out of range", obj["confidence"])
	}
	if aspects, ok := obj["aspects"].(map[string]any); ok {
		p.Aspects = make(map[string]float64, len(aspects))
		for k, a := range aspects {
			if f, ok := num(a); ok && f >= 0 && f <= 1 {
				p.Aspects[k] = f
			} else if a != nil {
				v.warn("sentiment: aspect %s value %v out of range", k, a)
			}
		}
	}
	return p, nil
}

var priceRangeRe = regexp.MustCompile(`^\${1,4}$`)

func (v *validator) truck(raw any) (*TruckData, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalid("truck: expected object, got %T", raw)
	}
	t := &TruckData{
		Name:           str(obj["name"]),
		Description:    str(obj["description"]),
		CuisineType:    strs(firstNonNil(obj["cuisine_type"], obj["cuisine"])),
		Specialties:    strs(obj["specialties"]),
		DietaryOptions: strs(obj["dietary_options"]),
	}

	if pr := str(obj["price_range"]); pr != "" {
		if priceRangeRe.MatchString(pr) {
			t.PriceRange = pr
		} else {
			v.warn("price_range: unexpected value %q", pr)
		}
	}

	contact, _ := obj["contact"].(map[string]any)
	if contact == nil {
		contact = obj
	}
	t.Contact = model.ContactInfo{
		Phone:   str(contact["phone"]),
		Email:   str(contact["email"]),
		Website: str(contact["website"]),
	}

	social, _ := obj["social_media"].(map[string]any)
	if social == nil {
		social, _ = contact["social_media"].(map[string]any)
	}
	t.SocialMedia = model.SocialMedia{
		Instagram: str(social["instagram"]),
		Facebook:  str(social["facebook"]),
		Twitter:   str(social["twitter"]),
		TikTok:    str(social["tiktok"]),
		Yelp:      str(social["yelp"]),
	}

	if lo, ok := obj["location"].(map[string]any); ok {
		t.Location = v.location(lo)
	} else if addr := str(obj["location"]); addr != "" {
		t.Location = &LocationPayload{Address: addr}
	}

	if h, ok := obj["operating_hours"].(map[string]any); ok {
		t.OperatingHours = v.hours(h)
	}

	switch m := firstNonNil(obj["menu"], obj["menu_categories"]).(type) {
	case []any:
		t.Menu = v.menu(m)
	case nil:
	default:
		v.warn("menu: expected array, got %T", m)
	}
	return t, nil
}

// str returns a trimmed string, treating null, non-strings and the
// literal "null" as empty.
func str(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

func firstStr(vals ...any) string {
	for _, v := range vals {
		if s := str(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// strs accepts a single string or an array of strings.
func strs(v any) []string {
	switch t := v.(type) {
	case string:
		if s := str(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, e := range t {
			if s := str(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

var priceRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parsePrice accepts numbers and strings such as "$12.50" or "12".
func parsePrice(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t >= 0
	case string:
		m := priceRe.FindString(strings.ReplaceAll(t, ",", ""))
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	}
	return 0, false
}
