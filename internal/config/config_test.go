package config

import (
	"bytes"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func validTestConfig() Config {
	return Config{
		BaseURL:           "http://localhost:5173",
		ArtifactDir:       "./artifacts",
		NavigationTimeout: 15 * time.Second,
		WaitTimeout:       10 * time.Second,
		PollInterval:      250 * time.Millisecond,
		Parallelism:       4,
		Browser:           "chromium",
		Headless:          true,
		IdentityLayout:    LayoutEnvelope,
		AuthStorageKey:    "auth-storage",
		LegacyUserKey:     "currentUser",
		LocaleStorageKey:  "i18nextLng",
		TokenStorageKey:   "token",
		RoleChange:        RoleChangePatch,
		NoS3:              true,
	}
}

func TestValidate_LocalModeMinimalConfigPasses(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid local config, got error: %v", err)
	}
}

func TestValidate_RequiresS3WhenNotMocked(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.NoS3 = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when S3 is enabled without credentials")
	}
	msg := err.Error()
	for _, expected := range []string{
		"AWS_ENDPOINT_URL_S3",
		"BUCKET_NAME",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func TestValidate_ListNeedsNoTarget(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.BaseURL = ""
	cfg.NoS3 = false
	cfg.List = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("--list should not need BASE_URL or S3: %v", err)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.BaseURL = "localhost"
	cfg.Browser = "lynx"
	cfg.IdentityLayout = "cookie"
	cfg.RoleChange = "swap"
	cfg.TokenSecret = "short"

	err := cfg.Validate()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Errors) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(verr.Errors), verr.Errors)
	}
}

func testValidate_RejectsNonPositiveWaits(t *rapid.T) {
	cfg := validTestConfig()
	cfg.NavigationTimeout = time.Duration(rapid.Int64Range(-1000, 0).Draw(t, "nav"))
	cfg.WaitTimeout = time.Duration(rapid.Int64Range(-1000, 0).Draw(t, "wait"))
	cfg.Parallelism = rapid.IntRange(-10, 0).Draw(t, "parallelism")

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for non-positive waits")
	}
	msg := err.Error()
	for _, token := range []string{"NAVIGATION_TIMEOUT", "WAIT_TIMEOUT", "PARALLELISM"} {
		if !strings.Contains(msg, token) {
			t.Fatalf("expected error mentioning %q, got: %v", token, err)
		}
	}
}

func TestValidate_RejectsNonPositiveWaits(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsNonPositiveWaits)
}

func TestValidate_PollIntervalBoundedByWait(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.PollInterval = 20 * time.Second
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "POLL_INTERVAL") {
		t.Fatalf("expected POLL_INTERVAL error, got %v", err)
	}
}

func TestParseFlags_SplitsLists(t *testing.T) {
	t.Parallel()
	f, err := ParseFlags([]string{"--scenario", "portfolio", "--roles", "master, client", "--locales", "uk,en,", "--headed", "--no-s3"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if f.Scenario != "portfolio" || !f.Headed || !f.NoS3 {
		t.Fatalf("unexpected flags: %+v", f)
	}
	if strings.Join(f.Roles, "|") != "master|client" || strings.Join(f.Locales, "|") != "uk|en" {
		t.Fatalf("unexpected lists: %+v", f)
	}
	if len(f.Viewports) != 0 {
		t.Fatalf("expected empty viewports, got %v", f.Viewports)
	}
	if _, err := ParseFlags([]string{"--bogus"}); err == nil {
		t.Fatal("expected unknown flag error")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:5173/")
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("ROLE_CHANGE", "")
	t.Setenv("IDENTITY_LAYOUT", "")

	cfg, err := LoadConfig(Flags{NoS3: true})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.BaseURL != "http://localhost:5173" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.BaseURL)
	}
	if cfg.NavigationTimeout != 15*time.Second || cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected wait defaults: %+v", cfg)
	}
	if cfg.IdentityLayout != LayoutEnvelope || cfg.RoleChange != RoleChangePatch || !cfg.Headless {
		t.Fatalf("unexpected identity defaults: %+v", cfg)
	}
	if cfg.UsesToken() {
		t.Fatal("token should be off without TOKEN_SECRET")
	}

	var buf bytes.Buffer
	cfg.PrintStartupSummary(&buf)
	if !strings.Contains(buf.String(), "Local only") {
		t.Fatalf("summary missing storage line: %s", buf.String())
	}
}

func TestLoadConfig_MCPRateLimit(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:5173")
	t.Setenv("MCP_RATE_RPS", "2")
	t.Setenv("MCP_RATE_BURST", "0")

	_, err := LoadConfig(Flags{NoS3: true, MCPAddr: ":8090"})
	if err == nil || !strings.Contains(err.Error(), "MCP_RATE_RPS and MCP_RATE_BURST") {
		t.Fatalf("expected rate limit validation error, got %v", err)
	}

	t.Setenv("MCP_RATE_BURST", "5")
	cfg, err := LoadConfig(Flags{NoS3: true, MCPAddr: ":8090"})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MCPRateRPS != 2 || cfg.MCPRateBurst != 5 {
		t.Fatalf("unexpected rate settings: %v %d", cfg.MCPRateRPS, cfg.MCPRateBurst)
	}
	var buf bytes.Buffer
	cfg.PrintStartupSummary(&buf)
	if !strings.Contains(buf.String(), ":8090/mcp") {
		t.Fatalf("summary missing MCP line: %s", buf.String())
	}
}

func TestLoadConfig_S3Settings(t *testing.T) {
	t.Setenv("BASE_URL", "http://localhost:5173")
	t.Setenv("AWS_ENDPOINT_URL_S3", "http://127.0.0.1:9000/")
	t.Setenv("BUCKET_NAME", "shots")
	t.Setenv("AWS_ACCESS_KEY_ID", "minio")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "minio-secret")
	t.Setenv("S3_PUBLIC_URL", "")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("S3_MAX_ATTEMPTS", "5")

	cfg, err := LoadConfig(Flags{})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AWSPublicURL != "http://127.0.0.1:9000/shots" {
		t.Fatalf("public URL not derived from endpoint: %q", cfg.AWSPublicURL)
	}
	if !cfg.S3UsePathStyle || cfg.S3MaxAttempts != 5 {
		t.Fatalf("unexpected S3 client settings: %+v", cfg)
	}
}

func TestHelperParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-an-int")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	t.Setenv("CFG_TEST_FLOAT", "fast")
	if got := parseFloatOrDefault("CFG_TEST_FLOAT", 0.5); got != 0.5 {
		t.Fatalf("parseFloatOrDefault fallback mismatch: got=%v want=0.5", got)
	}
	if got := parseIntOrDefault("CFG_TEST_INT", 7); got != 7 {
		t.Fatalf("parseIntOrDefault fallback mismatch: got=%d want=7", got)
	}
	if got := parseDurationOrDefault("CFG_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("parseDurationOrDefault fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	key := "CFG_TEST_STR_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Setenv(key, "   value   "); err != nil {
		t.Fatalf("Setenv failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if got := getEnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("getEnvOrDefault trim mismatch: got=%q want=%q", got, "value")
	}
}
