package discovery

import (
	"net/url"
	"regexp"
	"strings"
)

// Rejection reason codes.
const (
	ReasonInvalidURL   = "invalid_url"
	ReasonBlockedHost  = "blocked_host"
	ReasonGovernment   = "government"
	ReasonExcludedPath = "excluded_path"
	ReasonNoSignal     = "no_food_signal"
)

// defaultBlocklist lists social networks, review aggregators, maps,
// event sites and delivery marketplaces. Trucks listed there are found
// through their own sites instead.
var defaultBlocklist = []string{
	"facebook.com", "instagram.com", "twitter.com", "x.com", "linkedin.com",
	"youtube.com", "tiktok.com", "pinterest.com", "reddit.com",
	"yelp.com", "google.com", "foursquare.com", "tripadvisor.com", "zomato.com",
	"eventbrite.com", "meetup.com", "allevents.in",
	"doordash.com", "ubereats.com", "grubhub.com", "postmates.com",
	"wikipedia.org",
}

// foodKeywords mark a URL as likely belonging to a food business.
var foodKeywords = []string{
	"food-truck", "foodtruck", "mobile-food", "street-food", "truck", "kitchen",
	"eats", "bbq", "burger", "taco", "catering", "mobile", "chef", "bistro", "cafe",
}

var (
	// nonBusinessPathRe catches listing and article pages anywhere in the path.
	nonBusinessPathRe = regexp.MustCompile(`(?i)(^|[/_-])(calendar|events?|news|blog|articles?|reviews?|directory|listings?|top-\d+|best)([/_.-]|$)`)
	commercialTLDRe   = regexp.MustCompile(`\.(com|net|org|biz|info|co|us)$`)
)

var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "ref": true, "mc_cid": true, "mc_eid": true,
}

// NormalizeURL canonicalizes rawURL for deduplication: lower-case host
// without "www.", no fragment, no tracking parameters and no trailing
// slash. Only http and https URLs with a host are accepted.
func NormalizeURL(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.User = nil

	q := u.Query()
	for k := range q {
		if trackingParams[strings.ToLower(k)] || strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), true
}

// Filter decides which discovered URLs are worth scraping.
type Filter struct {
	blocklist []string
	paths     *PathMatcher
}

// NewFilter creates a Filter with the default blocklist plus extra hosts.
func NewFilter(extraBlocklist []string) *Filter {
	bl := append([]string(nil), defaultBlocklist...)
	for _, h := range extraBlocklist {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			bl = append(bl, strings.TrimPrefix(h, "www."))
		}
	}
	return &Filter{blocklist: bl, paths: NewPathMatcher(nil)}
}

// Check normalizes rawURL and reports whether it should be kept. When it
// is rejected, reason is one of the Reason codes.
func (f *Filter) Check(rawURL string) (normalized, reason string, ok bool) {
	normalized, valid := NormalizeURL(rawURL)
	if !valid {
		return "", ReasonInvalidURL, false
	}
	u, _ := url.Parse(normalized)
	host := u.Hostname()

	if isBlockedHost(host, f.blocklist) {
		return normalized, ReasonBlockedHost, false
	}
	if host == "gov" || strings.HasSuffix(host, ".gov") || strings.Contains(host, ".gov.") {
		return normalized, ReasonGovernment, false
	}
	if f.paths.IsExcluded(normalized) || nonBusinessPathRe.MatchString(u.Path) {
		return normalized, ReasonExcludedPath, false
	}

	lower := strings.ToLower(normalized)
	for _, kw := range foodKeywords {
		if strings.Contains(lower, kw) {
			return normalized, "", true
		}
	}
	if commercialTLDRe.MatchString(host) && (u.Path == "" || u.Path == "/") {
		return normalized, "", true
	}
	return normalized, ReasonNoSignal, false
}

// isBlockedHost reports whether host is, or is a subdomain of, a blocked host.
func isBlockedHost(host string, blocklist []string) bool {
	for _, blocked := range blocklist {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

var (
	contentURLRe    = regexp.MustCompile(`https?://[^\s<>"'\])]{1,200}`)
	trailingPunctRe = regexp.MustCompile(`[.,;:!?)]+$`)
)

// ExtractURLs returns the http(s) URLs mentioned in free text, with
// trailing punctuation removed.
func ExtractURLs(text string) []string {
	matches := contentURLRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = trailingPunctRe.ReplaceAllString(m, "")
		if _, err := url.Parse(m); err == nil {
			out = append(out, m)
		}
	}
	return out
}
