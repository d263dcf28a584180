package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel       = "info"
	DefaultJSONLog        = false
	DefaultUserAgent      = "planscrape/1.0 (+https://github.com/law-makers/planscrape)"
	DefaultHTTPTimeout    = 20 * time.Second
	DefaultRateLimitRPS   = 2.0
	DefaultRateLimitBurst = 2
	DefaultRetryAttempts  = 3
	DefaultRetryBackoff   = 1 * time.Second
	DefaultCacheTTL       = 10 * time.Minute
	DefaultCacheSize      = 512
	DefaultKeyringService = "planscrape"
	DefaultFormat         = "json"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "PLANSCRAPE_"
