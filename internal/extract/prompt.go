package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// systemPrompt is the shared system instruction for every extraction kind.
const systemPrompt = `You extract structured data about food trucks from website text, menus, reviews and schedules.

Formatting rules:
- Return exactly one JSON value and nothing else: no prose, no markdown fences
- Every key and every string value is double-quoted
- No trailing commas
- Use null for any field that is not present in the input; never guess
- Numbers are raw numbers (12.99, not "$12.99")
- Times are 24-hour "HH:MM"`

// maxInputChars bounds the content embedded in a prompt.
const maxInputChars = 60000

func truncateInput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxInputChars {
		return s[:maxInputChars]
	}
	return s
}

const menuSchema = `[
  {
    "category": "string",
    "items": [
      {"name": "string", "description": "string or null", "price": number or null, "dietary_tags": ["string"]}
    ]
  }
]`

const locationSchema = `{
  "address": "string or null",
  "city": "string or null",
  "state": "string or null",
  "zip_code": "string or null",
  "coordinates": {"lat": number, "lng": number} or null,
  "confidence": number between 0.0 and 1.0,
  "landmarks": ["string"]
}`

const hoursSchema = `{
  "monday": {"open": "HH:MM", "close": "HH:MM", "closed": false},
  "tuesday": {...}, "wednesday": {...}, "thursday": {...},
  "friday": {...}, "saturday": {...}, "sunday": {...}
}`

const sentimentSchema = `{
  "score": number between 0.0 (very negative) and 1.0 (very positive),
  "confidence": number between 0.0 and 1.0,
  "aspects": {"food_quality": number, "service": number, "value": number, "overall": number},
  "summary": "one or two sentences",
  "keywords": ["string"]
}`

const truckSchema = `{
  "name": "string",
  "description": "string or null",
  "cuisine_type": ["string"],
  "price_range": "$ | $$ | $$$ | $$$$ or null",
  "contact": {"phone": "string or null", "email": "string or null", "website": "string or null"},
  "social_media": {"instagram": "string or null", "facebook": "string or null", "twitter": "string or null", "tiktok": "string or null", "yelp": "string or null"},
  "location": {"address": "string or null", "city": "string or null", "state": "string or null", "coordinates": {"lat": number, "lng": number} or null},
  "operating_hours": {"monday": {"open": "HH:MM", "close": "HH:MM", "closed": false}, "...": "one entry per weekday"},
  "menu": [{"category": "string", "items": [{"name": "string", "description": "string or null", "price": number or null, "dietary_tags": ["string"]}]}],
  "specialties": ["string"],
  "dietary_options": ["string"]
}`

// BuildPrompt returns the user prompt for kind over input. sourceURL is
// only used by full extraction.
func BuildPrompt(kind Kind, input, sourceURL string) (string, error) {
	input = truncateInput(input)
	var sb strings.Builder

	switch kind {
	case KindMenu:
		fmt.Fprintf(&sb, "Parse this food truck menu into categories of items with prices and dietary tags.\n")
		fmt.Fprintf(&sb, "If there are no clear categories use \"Main Items\".\n\nMenu text:\n%s\n\nReturn JSON in this shape:\n%s", input, menuSchema)
	case KindLocation:
		fmt.Fprintf(&sb, "Extract where this food truck is located: addresses, cross streets or landmarks.\n")
		fmt.Fprintf(&sb, "Only include coordinates if they are written in the text.\n\nText:\n%s\n\nReturn JSON in this shape:\n%s", input, locationSchema)
	case KindHours:
		fmt.Fprintf(&sb, "Standardize these operating hours. Expand ranges like \"Mon-Fri\" to each day.\n")
		fmt.Fprintf(&sb, "Closed days have \"closed\": true and no times.\n\nHours text:\n%s\n\nReturn JSON in this shape:\n%s", input, hoursSchema)
	case KindSentiment:
		fmt.Fprintf(&sb, "Analyze the sentiment of this food truck review: food quality, service, value and overall experience.\n\n")
		fmt.Fprintf(&sb, "Review:\n%s\n\nReturn JSON in this shape:\n%s", input, sentimentSchema)
	case KindEnhance:
		fmt.Fprintf(&sb, "Standardize and complete this food truck record. Keep every original value; infer cuisine from the menu and price range from menu prices.\n\n")
		fmt.Fprintf(&sb, "Record:\n%s\n\nReturn JSON in this shape:\n%s", prettyJSON(input), truckSchema)
	case KindFullExtraction:
		fmt.Fprintf(&sb, "Extract everything you can about the food truck described by this website content (Markdown).\n\n")
		fmt.Fprintf(&sb, "Website content:\n%s\n", input)
		if sourceURL != "" {
			fmt.Fprintf(&sb, "\nSource URL: %s\n", sourceURL)
		}
		fmt.Fprintf(&sb, "\nReturn JSON in this shape:\n%s\n\nBe thorough with menu items, social links and contact details.", truckSchema)
	default:
		return "", fmt.Errorf("unknown extraction kind %q", kind)
	}
	return sb.String(), nil
}

// prettyJSON re-indents input when it is valid JSON.
func prettyJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s
	}
	return string(out)
}
