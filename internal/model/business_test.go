package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusinessRecord_AddSourceURL(t *testing.T) {
	b := &BusinessRecord{}
	b.AddSourceURL("https://a.com")
	b.AddSourceURL(" https://a.com ")
	b.AddSourceURL("")
	b.AddSourceURL("https://b.com")
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, b.SourceURLs)
}

func TestDefaultOperatingHours(t *testing.T) {
	h := DefaultOperatingHours()
	assert.Len(t, h, 7)
	assert.True(t, h.IsEmpty())

	h["friday"] = DayHours{Open: "11:00", Close: "20:00"}
	assert.False(t, h.IsEmpty())
}

func TestLocation_Coordinates(t *testing.T) {
	var nilLoc *Location
	_, _, ok := nilLoc.Coordinates()
	assert.False(t, ok)

	lat, lng := 32.77, -79.93
	lat2, lng2, ok := (&Location{Lat: &lat, Lng: &lng}).Coordinates()
	assert.True(t, ok)
	assert.Equal(t, lat, lat2)
	assert.Equal(t, lng, lng2)
}

func TestMenuItemCount(t *testing.T) {
	b := &BusinessRecord{Menu: []MenuCategory{
		{Name: "Tacos", Items: []MenuItem{{Name: "Al pastor"}, {Name: "Carnitas"}}},
		{Name: "Drinks", Items: []MenuItem{{Name: "Horchata"}}},
	}}
	assert.Equal(t, 3, b.MenuItemCount())
}
