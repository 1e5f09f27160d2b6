package model

// Distributor is one row of the normalized distributor registry. The
// directory import writes coordinates into Lat/Lng when the source has
// them; otherwise MapsLink may still carry an embedded coordinate that
// the locator extracts on demand.
type Distributor struct {
	Code     string
	Tenant   string
	Name     string
	Location string // location bucket used by the startup directory
	Lat      float64
	Lng      float64
	MapsLink string
}
