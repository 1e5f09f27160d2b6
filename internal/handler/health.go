package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health answers liveness probes. It sits outside the JWT group so
// load balancers can reach it without a token.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
