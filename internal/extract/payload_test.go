package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

func decoded(t *testing.T, text string) any {
	t.Helper()
	v, _, err := Decode(text, 3)
	require.NoError(t, err)
	return v
}

func TestValidate_Menu(t *testing.T) {
	raw := decoded(t, `[
		{"category": "Tacos", "items": [
			{"name": "Al Pastor", "price": "$3.50", "dietary_tags": ["gluten-free"]},
			{"name": "", "price": 2},
			{"name": "Carnitas", "price": null}
		]},
		{"category": null, "items": [{"name": "Horchata", "price": 4}]},
		{"category": "Empty", "items": []}
	]`)

	p, warnings, err := Validate(KindMenu, raw, "")
	require.NoError(t, err)
	menu := p.(MenuPayload)
	require.Len(t, menu.Categories, 2)

	tacos := menu.Categories[0]
	assert.Equal(t, "Tacos", tacos.Name)
	require.Len(t, tacos.Items, 2)
	assert.InDelta(t, 3.5, *tacos.Items[0].Price, 1e-9)
	assert.Equal(t, []string{"gluten-free"}, tacos.Items[0].DietaryTags)
	assert.Nil(t, tacos.Items[1].Price)

	assert.Equal(t, "Main Items", menu.Categories[1].Name)
	assert.Len(t, warnings, 1)
}

func TestValidate_MenuWrongShape(t *testing.T) {
	_, _, err := Validate(KindMenu, "tacos", "")
	require.ErrorIs(t, err, ErrInvalidPayload)

	p, _, err := Validate(KindMenu, map[string]any{"menu": []any{}}, "")
	require.NoError(t, err)
	assert.Empty(t, p.(MenuPayload).Categories)
}

func TestValidate_LocationRanges(t *testing.T) {
	p, warnings, err := Validate(KindLocation, decoded(t,
		`{"address": "123 King St", "city": "Charleston", "state": "SC", "zipCode": "29401",
		  "coordinates": {"lat": 32.78, "lng": -79.93}, "confidence": 0.9, "landmarks": ["Marion Square"]}`), "")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	loc := p.(LocationPayload)
	require.NotNil(t, loc.Lat)
	assert.InDelta(t, 32.78, *loc.Lat, 1e-9)
	assert.Equal(t, "123 King St, Charleston, SC 29401", loc.FullAddress())
	assert.Equal(t, 0.9, loc.Confidence)

	p, warnings, err = Validate(KindLocation, decoded(t,
		`{"address": "somewhere", "coordinates": {"lat": 132.0, "lng": -79.9}, "confidence": 4}`), "")
	require.NoError(t, err)
	loc = p.(LocationPayload)
	assert.Nil(t, loc.Lat)
	assert.Nil(t, loc.Lng)
	assert.Zero(t, loc.Confidence)
	assert.Len(t, warnings, 2)

	_, warnings, err = Validate(KindLocation, map[string]any{"lat": 10.0, "lng": 200.0}, "")
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

func TestValidate_Hours(t *testing.T) {
	p, warnings, err := Validate(KindHours, decoded(t, `{
		"monday": {"open": "11:00", "close": "14:30", "closed": false},
		"Tue": {"open": "5pm", "close": "9:30 PM"},
		"wednesday": {"open": "25:00", "close": "26:00"},
		"sunday": {"closed": true},
		"holiday": {"closed": true}
	}`), "")
	require.NoError(t, err)
	hours := p.(HoursPayload).Hours

	assert.Len(t, hours, 7)
	assert.Equal(t, model.DayHours{Open: "11:00", Close: "14:30"}, hours["monday"])
	assert.Equal(t, model.DayHours{Open: "17:00", Close: "21:30"}, hours["tuesday"])
	assert.True(t, hours["wednesday"].Closed)
	assert.True(t, hours["sunday"].Closed)
	assert.True(t, hours["friday"].Closed)
	assert.Len(t, warnings, 2)
}

func TestNormalizeClock(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"9:00", "09:00", true},
		{"21:30", "21:30", true},
		{"12am", "00:00", true},
		{"12:15 pm", "12:15", true},
		{"11 a.m.", "11:00", true},
		{"13pm", "", false},
		{"9", "", false},
		{"10:75", "", false},
		{"noon", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeClock(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestValidate_Sentiment(t *testing.T) {
	p, _, err := Validate(KindSentiment, decoded(t,
		`{"score": 0.85, "confidence": 0.7, "aspects": {"food_quality": 0.9, "service": 7}, "summary": "Great tacos", "keywords": ["tacos"]}`), "")
	require.NoError(t, err)
	s := p.(SentimentPayload)
	assert.Equal(t, 0.85, s.Score)
	assert.Equal(t, map[string]float64{"food_quality": 0.9}, s.Aspects)

	_, _, err = Validate(KindSentiment, map[string]any{"score": 8.0}, "")
	require.ErrorIs(t, err, ErrInvalidPayload)

	_, _, err = Validate(KindSentiment, map[string]any{"summary": "ok"}, "")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestValidate_FullExtraction(t *testing.T) {
	raw := decoded(t, `{
		"name": "Taco Truck",
		"description": null,
		"cuisine": "Mexican",
		"price_range": "$$",
		"contact": {"phone": "843-555-0100", "email": null, "website": "https://tacotruck.example",
			"social_media": {"instagram": "@tacotruck"}},
		"location": {"address": "123 King St", "city": "Charleston", "state": "SC", "coordinates": null},
		"operating_hours": {"friday": {"open": "11:00", "close": "22:00"}},
		"menu": [{"category": "Tacos", "items": [{"name": "Asada", "price": 4}]}],
		"specialties": ["birria"]
	}`)

	p, _, err := Validate(KindFullExtraction, raw, "https://tacotruck.example/menu")
	require.NoError(t, err)
	full := p.(FullExtractionPayload)
	assert.Equal(t, KindFullExtraction, full.Kind())
	assert.Equal(t, "Taco Truck", full.Name)
	assert.Empty(t, full.Description)
	assert.Equal(t, []string{"Mexican"}, full.CuisineType)
	assert.Equal(t, "$$", full.PriceRange)
	assert.Equal(t, "843-555-0100", full.Contact.Phone)
	assert.Equal(t, "@tacotruck", full.SocialMedia.Instagram)
	require.NotNil(t, full.Location)
	assert.Nil(t, full.Location.Lat)
	assert.Equal(t, "11:00", full.OperatingHours["friday"].Open)
	assert.True(t, full.OperatingHours["monday"].Closed)
	assert.Equal(t, "https://tacotruck.example/menu", full.SourceURL)

	_, _, err = Validate(KindEnhance, []any{}, "")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestValidate_UnknownKind(t *testing.T) {
	_, _, err := Validate(Kind("recipes"), map[string]any{}, "")
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestTruckData_Record(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lat, lng := 32.78, -79.93
	td := TruckData{
		Name:     "Taco Truck",
		Location: &LocationPayload{City: "Charleston", State: "SC", Lat: &lat, Lng: &lng},
	}

	rec := td.Record("https://tacotruck.example", now)
	assert.Equal(t, "Taco Truck", rec.Name)
	assert.Equal(t, model.VerificationPending, rec.VerificationStatus)
	assert.Equal(t, []string{"https://tacotruck.example"}, rec.SourceURLs)
	assert.Equal(t, "https://tacotruck.example", rec.ContactInfo.Website)
	require.NotNil(t, rec.CurrentLocation)
	assert.Equal(t, "Charleston, SC", rec.CurrentLocation.Address)
	assert.Equal(t, now, *rec.LastScrapedAt)

	rec = TruckData{Name: "X"}.Record("https://www.instagram.com/tacotruck", now)
	assert.Empty(t, rec.ContactInfo.Website)
	assert.Nil(t, rec.CurrentLocation)
}
