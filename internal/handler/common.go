package handler // handler defines http handlers

import (
    "errors"   // errors provides Is comparisons against repository sentinels
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // echo defines request context types

    "github.com/tickin/dock-slot-service/internal/repository" // repository holds the error taxonomy
)

// getActor extracts the authenticated subject from the context. It is
// stored by the JWT middleware under "user_id".
func getActor(c echo.Context) (string, error) {
    if v, ok := c.Get("user_id").(string); ok && v != "" {
        return v, nil
    }
    return "", errors.New("missing user identity in context")
}

// getTenant extracts the tenant claim from the context.
func getTenant(c echo.Context) (string, error) {
    if v, ok := c.Get("tenant").(string); ok && v != "" {
        return v, nil
    }
    return "", errors.New("missing tenant in context")
}

// mayBookFor reports whether the authenticated user is allowed to place
// bookings for the given distributor code. Managers are unrestricted.
// Sales tokens may carry a "distributors" claim listing permitted
// codes; when the claim is present the code must appear in it, and a
// token without the claim is unrestricted.
func mayBookFor(c echo.Context, code string) bool {
    if role, _ := c.Get("role").(string); role == "MANAGER" {
        return true
    }
    claim, ok := c.Get("distributors").([]interface{})
    if !ok || len(claim) == 0 {
        return true
    }
    for _, v := range claim {
        if s, ok := v.(string); ok && s == code {
            return true
        }
    }
    return false
}

// writeError maps a ledger/repository error onto the HTTP status the
// error taxonomy prescribes and renders it as a JSON body.
func writeError(c echo.Context, err error) error {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, repository.ErrValidation):
        status = http.StatusBadRequest
    case errors.Is(err, repository.ErrNotFound):
        status = http.StatusNotFound
    case errors.Is(err, repository.ErrConflict):
        status = http.StatusConflict
    case errors.Is(err, repository.ErrPolicy), errors.Is(err, repository.ErrUnresolvedLocation):
        status = http.StatusUnprocessableEntity
    }
    if status == http.StatusInternalServerError {
        c.Logger().Errorf("internal error: %v", err)
        return c.JSON(status, echo.Map{"error": "internal error"})
    }
    return c.JSON(status, echo.Map{"error": err.Error()})
}
