package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/tickin/dock-slot-service/internal/geo"
	"github.com/tickin/dock-slot-service/internal/model"
	"github.com/tickin/dock-slot-service/internal/repository"
)

// Location is the resolved display name and coordinate of a distributor.
type Location struct {
	Name string
	Lat  float64
	Lng  float64
}

// Locator resolves a distributor code to a coordinate for the geo-merge
// path. Lookup order: the in-memory directory imported at startup,
// then the persisted registry row, extracting coordinates from a stored
// map-service link when direct coordinates are absent. A HALF booking
// whose distributor cannot be resolved is a hard error — the ledger
// cannot geo-merge without coordinates.
type Locator struct {
	mu        sync.RWMutex
	directory map[string]Location // tenant|code -> resolved location
	repo      *repository.DistributorRepo
}

// NewLocator returns a Locator backed by the given registry repository.
// The directory starts empty; call LoadDirectory during startup.
func NewLocator(repo *repository.DistributorRepo) *Locator {
	return &Locator{directory: make(map[string]Location), repo: repo}
}

// LoadDirectory imports every registry row with a usable coordinate
// into the in-memory directory. The registry is already normalized to
// one canonical schema at import time, so no alternate field spellings
// are probed here. Returns the number of entries loaded.
func (l *Locator) LoadDirectory(ctx context.Context, tenant string) (int, error) {
	rows, err := l.repo.ListByTenant(ctx, tenant)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, d := range rows {
		lat, lng, ok := coordinateOf(d)
		if !ok {
			continue
		}
		l.directory[tenant+"|"+d.Code] = Location{Name: d.Name, Lat: lat, Lng: lng}
		n++
	}
	return n, nil
}

// Resolve returns the location for a distributor code. It consults the
// directory first and falls back to a registry read. Returns
// ErrUnresolvedLocation when neither source yields a coordinate and
// ErrNotFound when the code is unknown entirely.
func (l *Locator) Resolve(ctx context.Context, tenant, code string) (Location, error) {
	key := tenant + "|" + code
	l.mu.RLock()
	loc, ok := l.directory[key]
	l.mu.RUnlock()
	if ok {
		return loc, nil
	}
	d, err := l.repo.GetByCode(ctx, tenant, code)
	if err != nil {
		return Location{}, err
	}
	lat, lng, ok := coordinateOf(*d)
	if !ok {
		return Location{}, fmt.Errorf("%w: distributor %s", repository.ErrUnresolvedLocation, code)
	}
	loc = Location{Name: d.Name, Lat: lat, Lng: lng}
	l.mu.Lock()
	l.directory[key] = loc
	l.mu.Unlock()
	return loc, nil
}

// coordinateOf extracts a usable coordinate from a registry row:
// direct lat/lng when present, otherwise a coordinate embedded in the
// stored map-service link.
func coordinateOf(d model.Distributor) (float64, float64, bool) {
	if geo.Known(d.Lat, d.Lng) {
		return d.Lat, d.Lng, true
	}
	if d.MapsLink != "" {
		if lat, lng, ok := parseMapsLink(d.MapsLink); ok {
			return lat, lng, true
		}
	}
	return 0, 0, false
}

// Map-service links embed coordinates either as ".../@17.3850,78.4867,..."
// or as a "q=17.3850,78.4867" query parameter.
var (
	atCoordRe = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	qCoordRe  = regexp.MustCompile(`[?&]q=(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
)

// parseMapsLink extracts a lat/lng pair from a map-service URL.
func parseMapsLink(link string) (float64, float64, bool) {
	for _, re := range []*regexp.Regexp{atCoordRe, qCoordRe} {
		if m := re.FindStringSubmatch(link); m != nil {
			lat, err1 := strconv.ParseFloat(m[1], 64)
			lng, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil && geo.Known(lat, lng) {
				return lat, lng, true
			}
		}
	}
	return 0, 0, false
}
