package dedup

import (
	"github.com/sells-group/foodtruck-cli/internal/model"
)

// Merge folds a fresh extraction into an existing record and returns the
// result. Existing non-empty values win, except location, hours and menu,
// which take the incoming values when present since they change over
// time. Source URLs are unioned.
func Merge(existing, incoming *model.BusinessRecord) *model.BusinessRecord {
	out := *existing

	out.Name = firstNonEmpty(existing.Name, incoming.Name)
	out.Description = firstNonEmpty(existing.Description, incoming.Description)
	out.PriceRange = firstNonEmpty(existing.PriceRange, incoming.PriceRange)
	if len(out.CuisineType) == 0 {
		out.CuisineType = incoming.CuisineType
	}
	if len(out.Specialties) == 0 {
		out.Specialties = incoming.Specialties
	}

	out.ContactInfo = model.ContactInfo{
		Phone:   firstNonEmpty(existing.ContactInfo.Phone, incoming.ContactInfo.Phone),
		Email:   firstNonEmpty(existing.ContactInfo.Email, incoming.ContactInfo.Email),
		Website: firstNonEmpty(existing.ContactInfo.Website, incoming.ContactInfo.Website),
	}
	out.SocialMedia = model.SocialMedia{
		Instagram: firstNonEmpty(existing.SocialMedia.Instagram, incoming.SocialMedia.Instagram),
		Facebook:  firstNonEmpty(existing.SocialMedia.Facebook, incoming.SocialMedia.Facebook),
		Twitter:   firstNonEmpty(existing.SocialMedia.Twitter, incoming.SocialMedia.Twitter),
		TikTok:    firstNonEmpty(existing.SocialMedia.TikTok, incoming.SocialMedia.TikTok),
		Yelp:      firstNonEmpty(existing.SocialMedia.Yelp, incoming.SocialMedia.Yelp),
	}

	if fresherLocation(existing.CurrentLocation, incoming.CurrentLocation) {
		loc := *incoming.CurrentLocation
		if loc.Address == "" && existing.CurrentLocation != nil {
			loc.Address = existing.CurrentLocation.Address
		}
		out.CurrentLocation = &loc
	}
	if !incoming.OperatingHours.IsEmpty() {
		out.OperatingHours = incoming.OperatingHours
	}
	if incoming.MenuItemCount() > 0 {
		out.Menu = incoming.Menu
	}

	out.SourceURLs = append([]string(nil), existing.SourceURLs...)
	for _, u := range incoming.SourceURLs {
		out.AddSourceURL(u)
	}

	if incoming.LastScrapedAt != nil && (existing.LastScrapedAt == nil || incoming.LastScrapedAt.After(*existing.LastScrapedAt)) {
		t := *incoming.LastScrapedAt
		out.LastScrapedAt = &t
	}
	return &out
}

// fresherLocation reports whether incoming should replace existing.
func fresherLocation(existing, incoming *model.Location) bool {
	if incoming == nil {
		return false
	}
	_, _, hasCoords := incoming.Coordinates()
	if !hasCoords && incoming.Address == "" {
		return false
	}
	if existing == nil || existing.UpdatedAt == nil {
		return true
	}
	if incoming.UpdatedAt == nil {
		return false
	}
	return !incoming.UpdatedAt.Before(*existing.UpdatedAt)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
