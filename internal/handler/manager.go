package handler

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/tickin/dock-slot-service/internal/service" // service implements the capacity ledger
)

// ManagerHandler serves the manager-only override endpoints: bucket
// confirmation, booking moves, threshold edits, slot enable/disable,
// the reserve-slot toggle and explicit cluster pinning. Routes mounted
// with this handler are guarded by the MANAGER role middleware.
type ManagerHandler struct {
    Ledger *service.Ledger // Ledger coordinates all slot mutations
}

// NewManagerHandler constructs a ManagerHandler and panics on a nil ledger.
func NewManagerHandler(ledger *service.Ledger) *ManagerHandler {
    if ledger == nil {
        panic("nil ledger passed to NewManagerHandler")
    }
    return &ManagerHandler{Ledger: ledger}
}

// ConfirmBucket handles POST /v1/manager/buckets/confirm. The bucket
// must have reached its threshold; confirming locks the bucket and
// every pending member booking in as a dispatched trip.
func (h *ManagerHandler) ConfirmBucket(c echo.Context) error {
    actor, err := getActor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Date     string `json:"date"`
        Time     string `json:"time"`
        MergeKey string `json:"merge_key"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    bucket, err := h.Ledger.ConfirmMergeBucket(c.Request().Context(), tenant, body.Date, body.Time, body.MergeKey, actor)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "merge_key":    bucket.MergeKey,
        "trip_status":  bucket.TripStatus,
        "total_amount": bucket.TotalAmount,
        "max_amount":   bucket.MaxAmount,
    })
}

// MoveBooking handles POST /v1/manager/bookings/move, reassigning one
// pooled booking between buckets with both totals adjusted atomically.
func (h *ManagerHandler) MoveBooking(c echo.Context) error {
    actor, err := getActor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        BookingID    string `json:"booking_id"`
        FromMergeKey string `json:"from_merge_key"`
        ToMergeKey   string `json:"to_merge_key"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    b, err := h.Ledger.MoveBooking(c.Request().Context(), tenant, body.BookingID, body.FromMergeKey, body.ToMergeKey, actor)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "booking_id": b.BookingID,
        "merge_key":  b.MergeKey,
        "status":     b.Status,
    })
}

// SetBucketThreshold handles POST /v1/manager/buckets/threshold,
// overriding the dispatch threshold of one existing bucket.
func (h *ManagerHandler) SetBucketThreshold(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Date      string `json:"date"`
        Time      string `json:"time"`
        MergeKey  string `json:"merge_key"`
        MaxAmount int64  `json:"max_amount"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    bucket, err := h.Ledger.SetBucketThreshold(c.Request().Context(), tenant, body.Date, body.Time, body.MergeKey, body.MaxAmount)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "merge_key":    bucket.MergeKey,
        "trip_status":  bucket.TripStatus,
        "total_amount": bucket.TotalAmount,
        "max_amount":   bucket.MaxAmount,
    })
}

// SetGlobalThreshold handles POST /v1/manager/threshold, changing the
// tenant-wide FULL/HALF boundary for future bookings and buckets.
func (h *ManagerHandler) SetGlobalThreshold(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Threshold int64 `json:"threshold"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if err := h.Ledger.SetGlobalThreshold(c.Request().Context(), tenant, body.Threshold); err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"threshold": body.Threshold})
}

// slotToggleBody is shared by DisableSlot and EnableSlot. Exactly one
// of position or merge_key identifies the target.
type slotToggleBody struct {
    Date     string `json:"date"`
    Time     string `json:"time"`
    Position string `json:"position"`
    MergeKey string `json:"merge_key"`
}

// DisableSlot handles POST /v1/manager/slots/disable, taking one
// position or bucket out of service. A booked position is refused.
func (h *ManagerHandler) DisableSlot(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body slotToggleBody
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if err := h.Ledger.DisableSlot(c.Request().Context(), tenant, body.Date, body.Time, body.Position, body.MergeKey); err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "disabled"})
}

// EnableSlot handles POST /v1/manager/slots/enable, returning a
// disabled position or bucket to service.
func (h *ManagerHandler) EnableSlot(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body slotToggleBody
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if err := h.Ledger.EnableSlot(c.Request().Context(), tenant, body.Date, body.Time, body.Position, body.MergeKey); err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "enabled"})
}

// ToggleReserveSlot handles POST /v1/manager/reserve-slot, opening or
// closing the gated final time slot for the tenant.
func (h *ManagerHandler) ToggleReserveSlot(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Enabled   bool   `json:"enabled"`
        OpenAfter string `json:"open_after"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    rules, err := h.Ledger.ToggleReserveSlot(c.Request().Context(), tenant, body.Enabled, body.OpenAfter)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "reserve_enabled":    rules.ReserveEnabled,
        "reserve_open_after": rules.ReserveOpenAfter,
    })
}

// AssignCluster handles POST /v1/manager/clusters, pinning a
// (date, order, distributor) triple to a named merge group for all
// subsequent pooled bookings.
func (h *ManagerHandler) AssignCluster(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Date            string `json:"date"`
        OrderRef        string `json:"order_ref"`
        DistributorCode string `json:"distributor_code"`
        ClusterID       string `json:"cluster_id"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if err := h.Ledger.AssignCluster(c.Request().Context(), tenant, body.Date, body.OrderRef, body.DistributorCode, body.ClusterID); err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "cluster_id": body.ClusterID,
        "order_ref":  body.OrderRef,
    })
}
