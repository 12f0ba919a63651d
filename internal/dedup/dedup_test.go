package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestNameKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Taco Truck", "taco truck"},
		{"  Café Olé Food Truck ", "cafe ole"},
		{"Smokin' Joe's BBQ & Grill", "smokin joe s bbq and grill"},
		{"Food Truck", "food truck"},
		{"STRASSE Mobile Kitchen", "strasse"},
		{"Straße", "strasse"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NameKey(tt.in), tt.in)
	}
	assert.Equal(t, "caf", NamePrefix("cafe ole"))
	assert.Equal(t, "bb", NamePrefix("bb"))
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("Tacos El Rey", "tacos el rey food truck"))
	assert.InDelta(t, 0.85625, NameSimilarity("Bun", "Bun Bros"), 1e-9)
	assert.Greater(t, NameSimilarity("Smokin Joes BBQ", "Smokin Joe's BBQ"), 0.9)
	assert.Less(t, NameSimilarity("Taco Truck", "Pizza Palace"), 0.5)
	assert.Zero(t, NameSimilarity("", "Pizza Palace"))
}

func TestHaversineAndDistanceSimilarity(t *testing.T) {
	assert.InDelta(t, 170380, HaversineMeters(32.7765, -79.9311, 34.0007, -81.0348), 100)
	assert.InDelta(t, 55.6, HaversineMeters(32.7765, -79.9311, 32.7770, -79.9311), 0.5)

	assert.Equal(t, 1.0, DistanceSimilarity(100))
	assert.InDelta(t, 0.5, DistanceSimilarity(550), 1e-9)
	assert.Equal(t, 0.0, DistanceSimilarity(1000))
}

func TestCompare_UsesAvailableComponents(t *testing.T) {
	a := &model.BusinessRecord{
		Name:            "Taco Truck",
		CurrentLocation: &model.Location{Lat: ptr(32.7765), Lng: ptr(-79.9311)},
		ContactInfo:     model.ContactInfo{Phone: "(843) 555-0100"},
	}
	b := &model.BusinessRecord{
		Name:            "Taco Truck",
		CurrentLocation: &model.Location{Lat: ptr(32.7770), Lng: ptr(-79.9311)},
		ContactInfo:     model.ContactInfo{Phone: "+1 843-555-0100"},
	}
	sim := Compare(a, b)
	assert.Equal(t, 1.0, sim.Overall)
	assert.True(t, sim.Compared["location"])
	assert.True(t, sim.Compared["contact"])
	assert.False(t, sim.Compared["menu"])

	b.ContactInfo.Phone = "843-555-9999"
	sim = Compare(a, b)
	assert.InDelta(t, (0.4+0.3)/0.9, sim.Overall, 1e-9)
}

func TestMenuAndContactSimilarity(t *testing.T) {
	m1 := []model.MenuCategory{{Items: []model.MenuItem{{Name: "Al Pastor"}, {Name: "Carnitas"}}}}
	m2 := []model.MenuCategory{{Items: []model.MenuItem{{Name: "al pastor"}, {Name: "Birria"}}}}
	v, ok := MenuSimilarity(m1, m2)
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, v, 1e-9)

	_, ok = MenuSimilarity(m1, nil)
	assert.False(t, ok)

	a := &model.BusinessRecord{
		ContactInfo: model.ContactInfo{Website: "https://www.tacotruck.test/menu"},
		SocialMedia: model.SocialMedia{Instagram: "@TacoTruck"},
	}
	b := &model.BusinessRecord{
		ContactInfo: model.ContactInfo{Website: "tacotruck.test"},
		SocialMedia: model.SocialMedia{Instagram: "https://instagram.com/tacotruck/"},
	}
	v, ok = ContactSimilarity(a, b)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestMerge(t *testing.T) {
	old := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	fresh := old.Add(10 * 24 * time.Hour)
	existing := &model.BusinessRecord{
		ID:              "b1",
		Name:            "Taco Truck",
		Description:     "Original description",
		ContactInfo:     model.ContactInfo{Phone: "843-555-0100"},
		SocialMedia:     model.SocialMedia{Instagram: "@tacotruck"},
		CurrentLocation: &model.Location{Lat: ptr(32.0), Lng: ptr(-79.0), Address: "Old St", UpdatedAt: &old},
		Menu:            []model.MenuCategory{{Name: "Old", Items: []model.MenuItem{{Name: "Old Taco"}}}},
		SourceURLs:      []string{"https://a.test"},
		LastScrapedAt:   &old,
	}
	incoming := &model.BusinessRecord{
		Name:            "Taco Truck LLC",
		Description:     "New description",
		ContactInfo:     model.ContactInfo{Phone: "999", Email: "hi@tacotruck.test"},
		SocialMedia:     model.SocialMedia{Facebook: "tacotruck"},
		CurrentLocation: &model.Location{Lat: ptr(32.5), Lng: ptr(-79.5), UpdatedAt: &fresh},
		OperatingHours:  model.OperatingHours{"monday": {Open: "11:00", Close: "14:00"}},
		Menu:            []model.MenuCategory{{Name: "New", Items: []model.MenuItem{{Name: "Birria"}}}},
		SourceURLs:      []string{"https://b.test", "https://a.test"},
		LastScrapedAt:   &fresh,
	}

	got := Merge(existing, incoming)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, "Taco Truck", got.Name)
	assert.Equal(t, "Original description", got.Description)
	assert.Equal(t, "843-555-0100", got.ContactInfo.Phone)
	assert.Equal(t, "hi@tacotruck.test", got.ContactInfo.Email)
	assert.Equal(t, "@tacotruck", got.SocialMedia.Instagram)
	assert.Equal(t, "tacotruck", got.SocialMedia.Facebook)
	assert.Equal(t, 32.5, *got.CurrentLocation.Lat)
	assert.Equal(t, "Old St", got.CurrentLocation.Address)
	assert.Equal(t, "11:00", got.OperatingHours["monday"].Open)
	assert.Equal(t, "Birria", got.Menu[0].Items[0].Name)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, got.SourceURLs)
	assert.Equal(t, fresh, *got.LastScrapedAt)

	// The existing record is left untouched.
	assert.Equal(t, []string{"https://a.test"}, existing.SourceURLs)

	// An older location does not replace a fresher one.
	stale := *incoming
	stale.CurrentLocation = &model.Location{Lat: ptr(1.0), Lng: ptr(1.0), UpdatedAt: ptr(old.Add(-time.Hour))}
	got = Merge(existing, &stale)
	assert.Equal(t, 32.0, *got.CurrentLocation.Lat)
}

func TestResolver_Upsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	prepared := 0
	r := NewResolver(st, config.DedupConfig{}, WithPrepare(func(b *model.BusinessRecord) {
		prepared++
		b.DataQualityScore = 0.5
	}))

	rec, created, err := r.Upsert(ctx, &model.BusinessRecord{
		Name:       "Taco Truck",
		SourceURLs: []string{"https://tacotruck.test"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.VerificationPending, rec.VerificationStatus)
	assert.Equal(t, 0.5, rec.DataQualityScore)

	// Same source URL, different name.
	again, created, err := r.Upsert(ctx, &model.BusinessRecord{
		Name:        "Taco Truck Charleston",
		Description: "Tacos",
		SourceURLs:  []string{"https://tacotruck.test"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, "Tacos", again.Description)

	// Same normalized name, new URL.
	byName, created, err := r.Upsert(ctx, &model.BusinessRecord{
		Name:       "TACO TRUCK food truck",
		SourceURLs: []string{"https://instagram.com/tacotruck"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.ID, byName.ID)
	assert.ElementsMatch(t, []string{"https://tacotruck.test", "https://instagram.com/tacotruck"}, byName.SourceURLs)

	found, err := st.FindBusinessBySourceURL(ctx, "https://instagram.com/tacotruck")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.ID, found.ID)

	n, err := st.CountBusinesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, prepared)
}

func TestResolver_FuzzyMatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := NewResolver(st, config.DedupConfig{Threshold: 0.8, NameThreshold: 0.85})

	base := &model.BusinessRecord{
		Name:            "Smokin Joes BBQ",
		CurrentLocation: &model.Location{Lat: ptr(32.7765), Lng: ptr(-79.9311)},
		SourceURLs:      []string{"https://smokinjoes.test"},
	}
	_, created, err := r.Upsert(ctx, base)
	require.NoError(t, err)
	require.True(t, created)

	near := &model.BusinessRecord{
		Name:            "Smokin Joe's BBQ",
		CurrentLocation: &model.Location{Lat: ptr(32.7770), Lng: ptr(-79.9311)},
		SourceURLs:      []string{"https://facebook.com/smokinjoes"},
	}
	m, err := r.FindMatch(ctx, near)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, MatchFuzzy, m.Reason)

	far := &model.BusinessRecord{
		Name:            "Smokin Joe's BBQ",
		CurrentLocation: &model.Location{Lat: ptr(34.0007), Lng: ptr(-81.0348)},
		SourceURLs:      []string{"https://smokinjoes-columbia.test"},
	}
	m, err = r.FindMatch(ctx, far)
	require.NoError(t, err)
	assert.Nil(t, m)

	other := &model.BusinessRecord{Name: "Smoothie Shack", SourceURLs: []string{"https://shack.test"}}
	m, err = r.FindMatch(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, m)
}
