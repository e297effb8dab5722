// uiverify runs scripted browser scenarios against a web application and
// writes screenshots plus a pass/fail report for every matrix cell.
//
//	uiverify --list
//	uiverify --scenario portfolio --locales uk,en --viewports desktop,mobile
//	uiverify --scenario ./flows/checkout.yaml --no-s3
//	uiverify --mcp-addr :8090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/kuitang/uiverify/internal/artifact"
	"github.com/kuitang/uiverify/internal/config"
	"github.com/kuitang/uiverify/internal/errs"
	"github.com/kuitang/uiverify/internal/identity"
	"github.com/kuitang/uiverify/internal/journeys"
	"github.com/kuitang/uiverify/internal/mcp"
	"github.com/kuitang/uiverify/internal/obs"
	"github.com/kuitang/uiverify/internal/ratelimit"
	"github.com/kuitang/uiverify/internal/runner"
	"github.com/kuitang/uiverify/internal/s3client"
	"github.com/kuitang/uiverify/internal/scenario"
	"github.com/kuitang/uiverify/internal/scenariofile"
	"github.com/kuitang/uiverify/internal/session"
	"github.com/kuitang/uiverify/internal/target/pwtarget"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
	exitInfra  = 3
)

func main() {
	obs.Init()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags, err := config.ParseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stdout, usage)
			return exitOK
		}
		fmt.Fprintf(stderr, "uiverify: %v\n%s\n", err, usage)
		return exitUsage
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "uiverify: %v\n", err)
		return exitUsage
	}

	registry := journeys.Builtin()
	if cfg.List {
		printList(stdout, registry)
		return exitOK
	}

	var plan []planItem
	if cfg.MCPAddr == "" {
		plan, err = buildPlan(cfg, registry, identity.Builtin())
		if err != nil {
			fmt.Fprintf(stderr, "uiverify: %v\n", err)
			return exitUsage
		}
	}

	cfg.PrintStartupSummary(stderr)
	logger := obs.Pkg("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	injector, err := newInjector(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "uiverify: %v\n", err)
		return exitUsage
	}
	logger.Info("session_injector",
		"layout", string(injector.Layout().Kind),
		"key", injector.Layout().Key,
		"role_change", string(injector.Mode()),
	)
	sink, err := newSink(ctx, cfg)
	if err != nil {
		logger.Error("sink_init_failed", "error", err.Error())
		return exitInfra
	}
	launcher, err := pwtarget.Launch(pwtarget.Config{Browser: cfg.Browser, Headless: cfg.Headless})
	if err != nil {
		logger.Error("browser_launch_failed", "error", err.Error())
		return exitInfra
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			logger.Warn("browser_close_failed", "error", err.Error())
		}
	}()

	r := runner.New(launcher, injector, sink, runner.Options{
		BaseURL:      cfg.BaseURL,
		WaitTimeout:  cfg.WaitTimeout,
		PollInterval: cfg.PollInterval,
		Parallelism:  cfg.Parallelism,
	})

	if cfg.MCPAddr != "" {
		rl := ratelimit.NewRateLimiter(ratelimit.Config{RPS: cfg.MCPRateRPS, Burst: cfg.MCPRateBurst})
		defer rl.Stop()
		srv := mcp.NewServer(mcp.NewHandler(registry, navigationDefaults{r, cfg}, nil)).WithRateLimit(rl)
		if err := srv.Start(ctx, cfg.MCPAddr); err != nil {
			logger.Error("mcp_server_failed", "error", err.Error())
			return exitInfra
		}
		return exitOK
	}

	var summaries []artifact.Summary
	for _, item := range plan {
		out, err := r.RunAll(ctx, []scenario.Scenario{item.Scenario}, item.Matrix)
		summaries = append(summaries, out...)
		if err != nil {
			logger.Error("scenario_failed", "scenario", item.Scenario.ID, "code", string(errs.CodeOf(err)), "error", err.Error())
			printSummaries(stdout, summaries)
			if errs.Is(err, errs.Cancelled) {
				return exitFailed
			}
			return exitInfra
		}
	}
	printSummaries(stdout, summaries)
	return exitCode(summaries)
}

const usage = `usage: uiverify [--list] [--scenario ID|FILE|all] [--roles r1,r2] [--locales l1,l2] [--viewports v1,v2] [--headed] [--no-s3] [--mcp-addr ADDR]

Environment: BASE_URL (required), ARTIFACT_DIR, NAVIGATION_TIMEOUT, WAIT_TIMEOUT, POLL_INTERVAL,
PARALLELISM, BROWSER, IDENTITY_LAYOUT, AUTH_STORAGE_KEY, LEGACY_USER_KEY, LOCALE_STORAGE_KEY,
TOKEN_STORAGE_KEY, TOKEN_SECRET, ROLE_CHANGE, MCP_RATE_RPS, MCP_RATE_BURST, AWS_ENDPOINT_URL_S3,
AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, BUCKET_NAME, S3_PUBLIC_URL, S3_USE_PATH_STYLE,
S3_MAX_ATTEMPTS`

// planItem is one scenario and the matrix it runs across.
type planItem struct {
	Scenario scenario.Scenario
	Matrix   scenario.Matrix
}

// buildPlan resolves --scenario to built-in journeys or a YAML document and
// applies the matrix flags, which replace each scenario's own matrix.
func buildPlan(cfg *config.Config, registry *journeys.Registry, catalog *identity.Catalog) ([]planItem, error) {
	var plan []planItem
	switch ref := strings.TrimSpace(cfg.Scenario); {
	case ref == "" || ref == "all":
		for _, e := range registry.Entries() {
			plan = append(plan, planItem{Scenario: e.Scenario, Matrix: e.Matrix})
		}
	case isScenarioFile(ref):
		f, err := scenariofile.Load(ref, catalog)
		if err != nil {
			return nil, err
		}
		plan = append(plan, planItem{Scenario: f.Scenario, Matrix: f.Matrix})
	default:
		e, ok := registry.Get(ref)
		if !ok {
			return nil, errs.Newf(errs.InvalidArgument, "unknown scenario %q (known: %s)", ref, strings.Join(registry.IDs(), ", "))
		}
		plan = append(plan, planItem{Scenario: e.Scenario, Matrix: e.Matrix})
	}

	if len(cfg.Roles)+len(cfg.Locales)+len(cfg.Viewports) > 0 {
		m, err := scenario.ParseMatrix(cfg.Roles, cfg.Locales, cfg.Viewports)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "matrix flags", err)
		}
		for i := range plan {
			plan[i].Matrix = m
		}
	}
	for i := range plan {
		plan[i].Scenario = withNavigationDefault(plan[i].Scenario, cfg)
		if _, err := plan[i].Matrix.Expand(plan[i].Scenario); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func isScenarioFile(ref string) bool {
	if strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") {
		return true
	}
	return strings.ContainsRune(ref, os.PathSeparator)
}

func withNavigationDefault(s scenario.Scenario, cfg *config.Config) scenario.Scenario {
	if s.NavigationTimeout == 0 {
		s.NavigationTimeout = cfg.NavigationTimeout
	}
	return s
}

// navigationDefaults applies the configured navigation timeout to scenarios
// submitted over MCP.
type navigationDefaults struct {
	r   *runner.Runner
	cfg *config.Config
}

func (n navigationDefaults) RunAll(ctx context.Context, scenarios []scenario.Scenario, m scenario.Matrix) ([]artifact.Summary, error) {
	adjusted := make([]scenario.Scenario, len(scenarios))
	for i, s := range scenarios {
		adjusted[i] = withNavigationDefault(s, n.cfg)
	}
	return n.r.RunAll(ctx, adjusted, m)
}

func newInjector(cfg *config.Config) (*session.Injector, error) {
	layout := identity.Layout{Kind: identity.Envelope, Key: cfg.AuthStorageKey}
	if cfg.IdentityLayout == config.LayoutLegacy {
		layout = identity.Layout{Kind: identity.Legacy, Key: cfg.LegacyUserKey}
	}
	sc := session.Config{
		Layout:     layout,
		LocaleKey:  cfg.LocaleStorageKey,
		RoleChange: session.RoleChange(cfg.RoleChange),
	}
	if cfg.UsesToken() {
		sc.TokenKey = cfg.TokenStorageKey
		sc.TokenSecret = []byte(cfg.TokenSecret)
	}
	return session.New(sc)
}

func newSink(ctx context.Context, cfg *config.Config) (artifact.Sink, error) {
	local := artifact.NewFileSink(cfg.ArtifactDir)
	if cfg.NoS3 {
		obs.Pkg("main").Info("artifact_storage", "mode", "local", "dir", local.Dir())
		return local, nil
	}
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
		PublicURL:       cfg.AWSPublicURL,
		UsePathStyle:    cfg.S3UsePathStyle,
		MaxAttempts:     cfg.S3MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}
	if err := client.CheckBucket(ctx); err != nil {
		return nil, err
	}
	obs.Pkg("main").Info("artifact_storage", "mode", "s3", "endpoint", cfg.AWSEndpointS3, "bucket", client.BucketName(), "dir", local.Dir())
	return artifact.MultiSink{local, artifact.NewS3Sink(client)}, nil
}

func printList(w io.Writer, registry *journeys.Registry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tSTEPS\tDESCRIPTION")
	for _, e := range registry.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", e.ID(), e.Scenario.Role(), len(e.Scenario.Steps), e.Scenario.Description)
	}
	_ = tw.Flush()
}

func printSummaries(w io.Writer, summaries []artifact.Summary) {
	for _, s := range summaries {
		for _, c := range s.Cells {
			if c.Failure == nil {
				fmt.Fprintf(w, "PASS  %s  %s  (%d artifacts)\n", s.Scenario, c.Cell, len(c.Artifacts))
				continue
			}
			f := c.Failure
			step := fmt.Sprintf("step %d", f.Step)
			if f.Step < 0 {
				step = "setup"
			}
			fmt.Fprintf(w, "FAIL  %s  %s  %s %s: %s\n", s.Scenario, c.Cell, f.Code, step, f.Message)
		}
	}
	var passed, total int
	for _, s := range summaries {
		passed += s.Passed
		total += s.Total
	}
	fmt.Fprintf(w, "%d/%d cells passed\n", passed, total)
}

func exitCode(summaries []artifact.Summary) int {
	for _, s := range summaries {
		if !s.OK() {
			return exitFailed
		}
	}
	return exitOK
}
