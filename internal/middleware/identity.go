package middleware

// identity.go defines helper functions shared across middleware files. They
// read the claims that JWTAuth stored in the Echo context so the rate
// limiter and response cache can partition their keys per user and per
// tenant. When no token is present, neutral fallbacks are returned.

import (
    "github.com/labstack/echo/v4"
)

// requestUser extracts the authenticated user identifier from context.
// It returns "guest" when no user is authenticated.
func requestUser(c echo.Context) string {
    if v, ok := c.Get("user_id").(string); ok && v != "" {
        return v
    }
    return "guest"
}

// requestTenant extracts the tenant claim from context. It returns
// "public" for unauthenticated requests so cached responses for
// tenant-scoped routes can never cross tenants.
func requestTenant(c echo.Context) string {
    if v, ok := c.Get("tenant").(string); ok && v != "" {
        return v
    }
    return "public"
}
