package config // package config loads application configuration from environment variables

import (
    "log"      // log is used to report configuration errors and halt execution
    "os"       // os provides access to environment variables
    "strconv"  // strconv converts strings to other types
    "strings"  // strings splits list-valued variables
    "time"     // time resolves the tenant timezone
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, slices for the
// slot grid dimensions, numbers for thresholds and distances.
type Config struct {
    Env              string   // application environment (e.g. "dev", "prod")
    Port             string   // HTTP port to listen on
    DBUser           string   // database username
    DBPass           string   // database password (optional)
    DBHost           string   // database host address
    DBPort           string   // database port number
    DBName           string   // database name
    JWTSecret        string   // secret used to verify JWTs
    SlotTimes        []string // slot grid times, HH:MM, comma separated
    SlotPositions    []string // vehicle positions, comma separated
    ReserveSlotTime  string   // the gated final slot time
    ReserveOpenAfter string   // earliest local time the reserve slot may open
    DefaultThreshold int64    // system-wide FULL/HALF amount boundary
    MergeRadiusKm    float64  // geo-merge radius in kilometres
    TenantTZ         string   // IANA timezone of the tenant's operating day
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Grid and policy
// variables default to the standard operating day.
func Load() Config {
    return Config{
        Env:              must("APP_ENV"),      // environment (dev/test/prod)
        Port:             must("APP_PORT"),     // port to bind the HTTP server
        DBUser:           must("DB_USER"),      // database user
        DBPass:           os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:           must("DB_HOST"),      // database host
        DBPort:           must("DB_PORT"),      // database port
        DBName:           must("DB_NAME"),      // database name
        JWTSecret:        must("JWT_SECRET"),   // secret used for verifying JWTs
        SlotTimes:        envList("SLOT_TIMES", "10:00,12:00,14:00,16:00,18:00,20:30"),
        SlotPositions:    envList("SLOT_POSITIONS", "A,B,C,D"),
        ReserveSlotTime:  envDefault("RESERVE_SLOT_TIME", "20:30"),
        ReserveOpenAfter: envDefault("RESERVE_OPEN_AFTER", "17:00"),
        DefaultThreshold: envInt64("DEFAULT_THRESHOLD", 80000),
        MergeRadiusKm:    envFloat("MERGE_RADIUS_KM", 25),
        TenantTZ:         envDefault("TENANT_TZ", "Asia/Kolkata"),
    }
}

// Timezone resolves TenantTZ into a *time.Location, exiting on an
// unknown zone name since every date computation depends on it.
func (c Config) Timezone() *time.Location {
    loc, err := time.LoadLocation(c.TenantTZ)
    if err != nil {
        log.Fatalf("invalid TENANT_TZ %q: %v", c.TenantTZ, err)
    }
    return loc
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// envDefault returns the variable's value or the given default.
func envDefault(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// envList splits a comma-separated variable into trimmed entries.
func envList(key, def string) []string {
    raw := envDefault(key, def)
    var out []string
    for _, p := range strings.Split(raw, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}

// envInt64 parses an integer variable, exiting on malformed input.
func envInt64(key string, def int64) int64 {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.ParseInt(v, 10, 64)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, v)
    }
    return n
}

// envFloat parses a float variable, exiting on malformed input.
func envFloat(key string, def float64) float64 {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    f, err := strconv.ParseFloat(v, 64)
    if err != nil {
        log.Fatalf("invalid float for %s: %q", key, v)
    }
    return f
}
