package extract

import (
	"strings"
	"time"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// Record converts extracted truck data into a candidate business record
// for sourceURL. The record has no ID; persistence assigns one on create.
func (t TruckData) Record(sourceURL string, now time.Time) *model.BusinessRecord {
	rec := &model.BusinessRecord{
		Name:               t.Name,
		Description:        t.Description,
		Menu:               t.Menu,
		OperatingHours:     t.OperatingHours,
		ContactInfo:        t.Contact,
		SocialMedia:        t.SocialMedia,
		CuisineType:        t.CuisineType,
		Specialties:        t.Specialties,
		PriceRange:         t.PriceRange,
		VerificationStatus: model.VerificationPending,
		LastScrapedAt:      &now,
	}
	if rec.ContactInfo.Website == "" && sourceURL != "" && !isSocialHost(sourceURL) {
		rec.ContactInfo.Website = sourceURL
	}
	if t.Location != nil {
		addr := t.Location.FullAddress()
		if addr != "" || t.Location.Lat != nil {
			rec.CurrentLocation = &model.Location{
				Lat:       t.Location.Lat,
				Lng:       t.Location.Lng,
				Address:   addr,
				UpdatedAt: &now,
			}
		}
	}
	rec.AddSourceURL(sourceURL)
	return rec
}

var socialHosts = []string{"facebook.com", "instagram.com", "twitter.com", "x.com/", "tiktok.com", "yelp.com"}

func isSocialHost(u string) bool {
	u = strings.ToLower(u)
	for _, h := range socialHosts {
		if strings.Contains(u, h) {
			return true
		}
	}
	return false
}
