package model

// Rules holds the per-tenant booking policy. A missing row means the
// defaults apply: reserve slot disabled, global threshold taken from
// service configuration.
//
// Fields:
//  Tenant           – company code the rules belong to.
//  ReserveEnabled   – whether the final (reserve) time slot accepts bookings.
//  ReserveOpenAfter – earliest local wall-clock time (HH:MM) the reserve
//                     slot may be booked once enabled.
//  DefaultThreshold – tenant-wide dispatch threshold; 0 means unset.
type Rules struct {
	Tenant           string
	ReserveEnabled   bool
	ReserveOpenAfter string
	DefaultThreshold int64
	UpdatedAt        string
}

// ClusterAssignment forces a specific (date, order, distributor) into a
// named merge group, pre-empting geo-proximity matching. Assignments
// affect only bookings made after they are written.
type ClusterAssignment struct {
	ID              string
	Tenant          string
	Date            string
	OrderRef        string
	DistributorCode string
	ClusterID       string
	CreatedAt       string
}
