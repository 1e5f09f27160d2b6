package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickin/dock-slot-service/internal/model"
	"github.com/tickin/dock-slot-service/internal/repository"
)

func TestParseMapsLink(t *testing.T) {
	cases := []struct {
		link     string
		lat, lng float64
		ok       bool
	}{
		{"https://maps.example.com/place/x/@17.3850,78.4867,15z", 17.3850, 78.4867, true},
		{"https://maps.example.com/?q=17.3850,78.4867", 17.3850, 78.4867, true},
		{"https://maps.example.com/?zoom=2&q=-33.8688,151.2093", -33.8688, 151.2093, true},
		{"https://maps.example.com/?q=0,0", 0, 0, false}, // zero coordinate is unknown
		{"https://maps.example.com/place/somewhere", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		lat, lng, ok := parseMapsLink(tc.link)
		assert.Equal(t, tc.ok, ok, tc.link)
		if tc.ok {
			assert.InDelta(t, tc.lat, lat, 1e-9, tc.link)
			assert.InDelta(t, tc.lng, lng, 1e-9, tc.link)
		}
	}
}

func TestLocatorResolve(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	loc := NewLocator(fx.dist)

	// Direct coordinates.
	fx.seedDistributor("DIRECT", 17.1, 78.1)
	got, err := loc.Resolve(ctx, testTenant, "DIRECT")
	require.NoError(t, err)
	assert.InDelta(t, 17.1, got.Lat, 1e-9)

	// Coordinates embedded in a maps link.
	require.NoError(t, fx.dist.Upsert(ctx, &model.Distributor{
		Code: "LINKED", Tenant: testTenant, Name: "Linked",
		MapsLink: "https://maps.example.com/@17.2,78.2,14z",
	}))
	got, err = loc.Resolve(ctx, testTenant, "LINKED")
	require.NoError(t, err)
	assert.InDelta(t, 17.2, got.Lat, 1e-9)
	assert.InDelta(t, 78.2, got.Lng, 1e-9)

	// No coordinate at all.
	require.NoError(t, fx.dist.Upsert(ctx, &model.Distributor{
		Code: "BLANK", Tenant: testTenant, Name: "Blank",
	}))
	_, err = loc.Resolve(ctx, testTenant, "BLANK")
	assert.ErrorIs(t, err, repository.ErrUnresolvedLocation)

	// Unknown code.
	_, err = loc.Resolve(ctx, testTenant, "MISSING")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLocatorDirectory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	loc := NewLocator(fx.dist)

	fx.seedDistributor("A1", 17.1, 78.1)
	fx.seedDistributor("A2", 17.2, 78.2)
	require.NoError(t, fx.dist.Upsert(ctx, &model.Distributor{
		Code: "NOCOORD", Tenant: testTenant, Name: "No coordinate",
	}))

	n, err := loc.LoadDirectory(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only rows with usable coordinates are imported")

	got, err := loc.Resolve(ctx, testTenant, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Distributor A2", got.Name)
}
