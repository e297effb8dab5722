// Package config provides centralized configuration for the uiverify runner.
// It loads configuration from CLI flags and environment variables, validates
// required fields, and provides sensible defaults.
//
// CLI flags select what to run (--scenario, --roles, --locales, --viewports)
// and which services are mocked (--no-s3). Environment variables describe the
// application under test and the artifact bucket.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTigrisRegion = "auto"

	LayoutEnvelope = "envelope"
	LayoutLegacy   = "legacy"

	RoleChangePatch    = "patch"
	RoleChangeReinject = "reinject"
)

// Flags holds parsed CLI flag values.
type Flags struct {
	Scenario  string
	Roles     []string
	Locales   []string
	Viewports []string
	List      bool
	Headed    bool
	NoS3      bool
	MCPAddr   string
}

// Config holds all runner configuration.
type Config struct {
	// Application under test
	BaseURL     string
	ArtifactDir string

	// Waiting
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	PollInterval      time.Duration
	Parallelism       int

	// Browser
	Browser  string // chromium | firefox | webkit
	Headless bool

	// Persisted identity layout
	IdentityLayout   string // envelope | legacy
	AuthStorageKey   string
	LegacyUserKey    string
	LocaleStorageKey string
	TokenStorageKey  string
	TokenSecret      string
	RoleChange       string // patch | reinject

	// Selection (controlled by CLI flags)
	Scenario  string
	Roles     []string
	Locales   []string
	Viewports []string
	List      bool
	MCPAddr   string

	// MCP rate limiting, per client
	MCPRateRPS   float64
	MCPRateBurst int

	// Mock service flags
	NoS3 bool // If true, artifacts only go to ArtifactDir (--no-s3)

	// S3/Tigris Storage (uses AWS_ env vars, set automatically by `fly storage create`)
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL (custom, not set by Tigris)
	S3UsePathStyle     bool   // S3_USE_PATH_STYLE (MinIO and other local endpoints)
	S3MaxAttempts      int    // S3_MAX_ATTEMPTS (0 keeps the SDK default)
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags from args (usually os.Args[1:]). Call before LoadConfig.
func ParseFlags(args []string) (Flags, error) {
	var (
		f                       Flags
		roles, locales, viewpts string
	)
	fs := flag.NewFlagSet("uiverify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.Scenario, "scenario", "", "Built-in scenario id, YAML file path, or \"all\"")
	fs.StringVar(&roles, "roles", "", "Comma-separated roles for the matrix (default: the scenario's own)")
	fs.StringVar(&locales, "locales", "", "Comma-separated locales for the matrix")
	fs.StringVar(&viewpts, "viewports", "", "Comma-separated named viewports (desktop, laptop, tablet, mobile)")
	fs.BoolVar(&f.List, "list", false, "List built-in scenarios and exit")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Keep artifacts on local disk only")
	fs.StringVar(&f.MCPAddr, "mcp-addr", "", "Serve scenario tools over MCP at this address instead of running")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	f.Roles = splitList(roles)
	f.Locales = splitList(locales)
	f.Viewports = splitList(viewpts)
	return f, nil
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	// CLI flag values
	cfg.Scenario = f.Scenario
	cfg.Roles = f.Roles
	cfg.Locales = f.Locales
	cfg.Viewports = f.Viewports
	cfg.List = f.List
	cfg.MCPAddr = f.MCPAddr
	cfg.NoS3 = f.NoS3
	cfg.Headless = !f.Headed

	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("BASE_URL", ""), "/")
	cfg.ArtifactDir = getEnvOrDefault("ARTIFACT_DIR", "./artifacts")

	cfg.NavigationTimeout = parseDurationOrDefault("NAVIGATION_TIMEOUT", 15*time.Second)
	cfg.WaitTimeout = parseDurationOrDefault("WAIT_TIMEOUT", 10*time.Second)
	cfg.PollInterval = parseDurationOrDefault("POLL_INTERVAL", 250*time.Millisecond)
	cfg.Parallelism = parseIntOrDefault("PARALLELISM", 4)

	cfg.MCPRateRPS = parseFloatOrDefault("MCP_RATE_RPS", 0.5)
	cfg.MCPRateBurst = parseIntOrDefault("MCP_RATE_BURST", 10)

	cfg.Browser = strings.ToLower(getEnvOrDefault("BROWSER", "chromium"))

	cfg.IdentityLayout = strings.ToLower(getEnvOrDefault("IDENTITY_LAYOUT", LayoutEnvelope))
	cfg.AuthStorageKey = getEnvOrDefault("AUTH_STORAGE_KEY", "auth-storage")
	cfg.LegacyUserKey = getEnvOrDefault("LEGACY_USER_KEY", "currentUser")
	cfg.LocaleStorageKey = getEnvOrDefault("LOCALE_STORAGE_KEY", "i18nextLng")
	cfg.TokenStorageKey = getEnvOrDefault("TOKEN_STORAGE_KEY", "token")
	cfg.TokenSecret = getEnvOrDefault("TOKEN_SECRET", "")
	cfg.RoleChange = strings.ToLower(getEnvOrDefault("ROLE_CHANGE", RoleChangePatch))

	// S3/Tigris Storage (AWS_ env vars set automatically by `fly storage create`)
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultTigrisRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "")
	cfg.AWSPublicURL = getEnvOrDefault("S3_PUBLIC_URL", "")
	cfg.S3UsePathStyle = getEnvOrDefault("S3_USE_PATH_STYLE", "") == "true"
	cfg.S3MaxAttempts = parseIntOrDefault("S3_MAX_ATTEMPTS", 0)
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// Listing scenarios needs no target, so BASE_URL is only required otherwise.
func (c *Config) Validate() error {
	var errs []string

	if !c.List {
		if c.BaseURL == "" {
			errs = append(errs, "BASE_URL is required (the application under test)")
		} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "BASE_URL must be an absolute URL like http://localhost:5173")
		}
	}

	if c.NavigationTimeout <= 0 {
		errs = append(errs, "NAVIGATION_TIMEOUT must be positive")
	}
	if c.WaitTimeout <= 0 {
		errs = append(errs, "WAIT_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "POLL_INTERVAL must be positive")
	} else if c.WaitTimeout > 0 && c.PollInterval > c.WaitTimeout {
		errs = append(errs, "POLL_INTERVAL must not exceed WAIT_TIMEOUT")
	}
	if c.Parallelism <= 0 {
		errs = append(errs, "PARALLELISM must be positive")
	}

	if c.MCPAddr != "" && (c.MCPRateRPS <= 0 || c.MCPRateBurst <= 0) {
		errs = append(errs, "MCP_RATE_RPS and MCP_RATE_BURST must be positive")
	}

	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, "BROWSER must be one of chromium, firefox, webkit")
	}
	switch c.IdentityLayout {
	case LayoutEnvelope, LayoutLegacy:
	default:
		errs = append(errs, "IDENTITY_LAYOUT must be envelope or legacy")
	}
	switch c.RoleChange {
	case RoleChangePatch, RoleChangeReinject:
	default:
		errs = append(errs, "ROLE_CHANGE must be patch or reinject")
	}
	if c.AuthStorageKey == "" || c.LegacyUserKey == "" || c.LocaleStorageKey == "" {
		errs = append(errs, "storage keys must not be empty")
	}
	if c.TokenSecret != "" && len(c.TokenSecret) < 32 {
		errs = append(errs, "TOKEN_SECRET must be at least 32 characters (HS256 key)")
	}

	// S3/Tigris: require AWS credentials unless --no-s3
	if !c.NoS3 && !c.List {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UsesToken reports whether a companion bearer token is injected with identities.
func (c *Config) UsesToken() bool {
	return c.TokenSecret != "" && c.TokenStorageKey != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "uiverify starting...")
	fmt.Fprintf(w, "  Target:   %s\n", c.BaseURL)
	mode := "headless"
	if !c.Headless {
		mode = "headed"
	}
	fmt.Fprintf(w, "  Browser:  %s (%s, parallelism %d)\n", c.Browser, mode, c.Parallelism)
	fmt.Fprintf(w, "  Waits:    navigation %s, wait %s, poll %s\n", c.NavigationTimeout, c.WaitTimeout, c.PollInterval)

	identity := fmt.Sprintf("%s (key %s)", c.IdentityLayout, c.AuthStorageKey)
	if c.IdentityLayout == LayoutLegacy {
		identity = fmt.Sprintf("%s (key %s)", c.IdentityLayout, c.LegacyUserKey)
	}
	if c.MCPAddr != "" {
		fmt.Fprintf(w, "  MCP:      %s/mcp (%.2f req/s, burst %d per client)\n", c.MCPAddr, c.MCPRateRPS, c.MCPRateBurst)
	}
	fmt.Fprintf(w, "  Identity: %s, role change %s\n", identity, c.RoleChange)
	if c.UsesToken() {
		fmt.Fprintf(w, "  Token:    HS256 under %s\n", c.TokenStorageKey)
	}

	if c.NoS3 {
		fmt.Fprintf(w, "  Storage:  Local only (--no-s3) at %s\n", c.ArtifactDir)
	} else {
		fmt.Fprintf(w, "  Storage:  S3 (endpoint: %s, bucket: %s) + %s\n", c.AWSEndpointS3, c.AWSBucketName, c.ArtifactDir)
	}
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(f Flags) *Config {
	cfg, err := LoadConfig(f)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
