package handler

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/tickin/dock-slot-service/internal/service" // service implements the capacity ledger
)

// SlotHandler serves the sales-facing slot endpoints: the day grid,
// booking, cancellation and explicit waiting-queue joins. All methods
// assume that JWT authentication and role validation has already been
// performed by middleware; the ledger enforces every capacity rule, so
// handlers only bind, authorize and translate errors.
type SlotHandler struct {
    Ledger *service.Ledger // Ledger coordinates all slot mutations
}

// NewSlotHandler constructs a SlotHandler and panics on a nil ledger.
func NewSlotHandler(ledger *service.Ledger) *SlotHandler {
    if ledger == nil {
        panic("nil ledger passed to NewSlotHandler")
    }
    return &SlotHandler{Ledger: ledger}
}

// GetGrid handles GET /v1/slots?date=YYYY-MM-DD. It renders the full
// day view: the dense times x positions matrix plus the day's pooled
// merge buckets. Reading the grid never mutates state.
func (h *SlotHandler) GetGrid(c echo.Context) error {
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    date := c.QueryParam("date")
    grid, err := h.Ledger.GetGrid(c.Request().Context(), tenant, date)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, grid)
}

// BookSlot handles POST /v1/slots/book. The ledger decides FULL versus
// HALF from the amount and the tenant's threshold; the response tells
// the caller which path the booking took, including the waiting-queue
// fallback for contributions against a closed bucket.
func (h *SlotHandler) BookSlot(c echo.Context) error {
    actor, err := getActor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Date            string `json:"date"`
        Time            string `json:"time"`
        DistributorCode string `json:"distributor_code"`
        Amount          int64  `json:"amount"`
        Position        string `json:"position"`
        OrderRef        string `json:"order_ref"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if !mayBookFor(c, body.DistributorCode) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "distributor not permitted for this user"})
    }
    res, err := h.Ledger.BookSlot(c.Request().Context(), service.BookSlotInput{
        Tenant:          tenant,
        Date:            body.Date,
        Time:            body.Time,
        Contributor:     actor,
        DistributorCode: body.DistributorCode,
        Amount:          body.Amount,
        Position:        body.Position,
        OrderRef:        body.OrderRef,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}

// CancelSlot handles POST /v1/slots/cancel. Only the contributor who
// holds the exclusive position may release it; pooled contributions
// are reshaped through the manager move endpoint instead.
func (h *SlotHandler) CancelSlot(c echo.Context) error {
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
        Position string `json:"position"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    err = h.Ledger.CancelSlot(c.Request().Context(), service.CancelSlotInput{
        Tenant:      tenant,
        Date:        body.Date,
        Time:        body.Time,
        Position:    body.Position,
        Contributor: actor,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "cancelled"})
}

// JoinWaiting handles POST /v1/slots/waiting: an explicit request to
// queue a contribution behind an existing bucket regardless of its
// state. Queue entries are consumed manually by managers.
func (h *SlotHandler) JoinWaiting(c echo.Context) error {
    actor, err := getActor(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    tenant, err := getTenant(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var body struct {
        Date            string `json:"date"`
        Time            string `json:"time"`
        MergeKey        string `json:"merge_key"`
        DistributorCode string `json:"distributor_code"`
        Amount          int64  `json:"amount"`
    }
    if err := c.Bind(&body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if !mayBookFor(c, body.DistributorCode) {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "distributor not permitted for this user"})
    }
    entry, err := h.Ledger.JoinWaitingQueue(c.Request().Context(), service.JoinWaitingQueueInput{
        Tenant:          tenant,
        Date:            body.Date,
        Time:            body.Time,
        MergeKey:        body.MergeKey,
        Contributor:     actor,
        DistributorCode: body.DistributorCode,
        Amount:          body.Amount,
    })
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "waiting_id": entry.ID,
        "merge_key":  entry.MergeKey,
        "status":     entry.Status,
    })
}
