// Package browser runs the authentication scenarios in a real browser.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t).
//
// With E2E_TARGET=fixture (the default) scenarios run against the local page
// fixture and its single account. With E2E_TARGET=live they drive the real
// site using HUDL_EMAIL and HUDL_PASSWORD.
package browser

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/hudl-auth-e2e/internal/authflow"
	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/fakesite"
	"github.com/kuitang/hudl-auth-e2e/internal/logutil"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
	"github.com/kuitang/hudl-auth-e2e/internal/statestore"
	"github.com/kuitang/hudl-auth-e2e/internal/urlutil"
)

const (
	// Fixture pages are local, so every wait is capped well below the live
	// default. Never introduce a larger timeout for fixture runs.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second

	stateTestBucket = "session-state"
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared environment for all browser tests.
type BrowserTestEnv struct {
	Config  *config.Config
	Flows   *authflow.Flows
	BaseURL string
	RunID   string

	// Site and Server are nil when targeting the live site.
	Site   *fakesite.Site
	Server *httptest.Server

	pw        *playwright.Playwright
	browser   playwright.Browser
	browserMu sync.Mutex
}

// SetupBrowserTestEnv returns the shared environment, creating it on first
// use. Tests are skipped in -short mode.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		browserSharedFixture = createBrowserTestEnv(t)
	}
	return browserSharedFixture
}

func createBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	obs.Init()
	obs.SetLevel(cfg.LogLevel)

	env := &BrowserTestEnv{Config: cfg, RunID: obs.NewRunID()}

	flowCfg := *cfg
	if !cfg.IsLive() {
		site, err := fakesite.New(fakesite.DefaultAccount)
		if err != nil {
			t.Fatalf("Failed to create page fixture: %v", err)
		}
		env.Site = site
		env.Server = httptest.NewServer(site.Handler())

		flowCfg.BaseURL = urlutil.BuildAbsolute(env.Server.URL, fakesite.HomePath)
		flowCfg.DisplayName = site.Account().DisplayName
		flowCfg.Timeout = browserMaxTimeout
		flowCfg.Navigation.RPS = 0
	}

	flows, err := authflow.FromConfig(&flowCfg)
	if err != nil {
		if env.Server != nil {
			env.Server.Close()
		}
		t.Fatalf("Failed to create flows: %v", err)
	}
	env.Flows = flows
	env.BaseURL = flows.BaseURL()
	return env
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		return
	}
	if browserSharedFixture.browser != nil {
		_ = browserSharedFixture.browser.Close()
	}
	if browserSharedFixture.pw != nil {
		_ = browserSharedFixture.pw.Stop()
	}
	if browserSharedFixture.Server != nil {
		browserSharedFixture.Server.Close()
	}
	browserSharedFixture = nil
}

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser starts Playwright and launches the configured browser. Skips
// the test if either is not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.browser != nil {
		return
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	var browserType playwright.BrowserType
	switch env.Config.Browser {
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(env.Config.Headless),
		SlowMo:   playwright.Float(float64(env.Config.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	env.pw = pw
	env.browser = browser
}

// Browser returns the launched browser. InitBrowser must be called first.
func (env *BrowserTestEnv) Browser() playwright.Browser {
	return env.browser
}

// NewPage creates a page in its own context. Closing the page closes the
// context.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()

	page, err := env.browser.NewPage(playwright.BrowserNewPageOptions{
		Locale: playwright.String(authflow.DefaultLocale),
	})
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	page.SetDefaultTimeout(env.Flows.TimeoutMS())
	page.SetDefaultNavigationTimeout(env.Flows.TimeoutMS())
	return page
}

// NewContext creates a fresh browser context with no stored session.
func (env *BrowserTestEnv) NewContext(t *testing.T) playwright.BrowserContext {
	t.Helper()

	bctx, err := env.browser.NewContext(playwright.BrowserNewContextOptions{
		Locale: playwright.String(authflow.DefaultLocale),
	})
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	bctx.SetDefaultTimeout(env.Flows.TimeoutMS())
	bctx.SetDefaultNavigationTimeout(env.Flows.TimeoutMS())
	return bctx
}

// =============================================================================
// Scenario helpers
// =============================================================================

// Context returns a context carrying the run's correlation fields and the
// current test name as the scenario.
func (env *BrowserTestEnv) Context(t *testing.T) context.Context {
	t.Helper()
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{
		RunID:    env.RunID,
		Browser:  env.Config.Browser,
		Scenario: t.Name(),
	})
	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	return ctx
}

// Credentials returns the account to log in with. Fixture runs export the
// fixture account first so both targets read credentials the same way.
func (env *BrowserTestEnv) Credentials(t *testing.T) config.Credentials {
	t.Helper()
	if env.Site != nil {
		account := env.Site.Account()
		t.Setenv(config.KeyEmail, account.Email)
		t.Setenv(config.KeyPassword, account.Password)
	}
	creds, err := config.LoadCredentials()
	require.NoError(t, err)
	return creds
}

// StateStore returns where captured sessions are published. Fixture runs use
// an in-memory S3 so the upload and download path is always exercised.
func (env *BrowserTestEnv) StateStore(t *testing.T) statestore.Store {
	t.Helper()
	if env.Site != nil {
		return statestore.TestS3(t, stateTestBucket, env.Config.StateKey)
	}
	store, err := statestore.FromConfig(env.Context(t), env.Config)
	require.NoError(t, err)
	return store
}

// LoginCount reports successful fixture logins, or -1 on the live site.
func (env *BrowserTestEnv) LoginCount() int64 {
	if env.Site == nil {
		return -1
	}
	return env.Site.LoginCount()
}

// OpenLoginForm opens a new page on the sign-in form.
func (env *BrowserTestEnv) OpenLoginForm(t *testing.T) playwright.Page {
	t.Helper()
	page := env.NewPage(t)
	if err := env.Flows.NavigateToLoginPage(env.Context(t), page); err != nil {
		LogPageState(t, page)
		_ = page.Close()
		t.Fatalf("navigate to login page: %v", err)
	}
	return page
}

// LogPageState logs the page URL, title and a preview of its HTML.
func LogPageState(t *testing.T, page playwright.Page) {
	t.Helper()
	title, _ := page.Title()
	content, _ := page.Content()
	t.Logf("Current URL: %s", page.URL())
	t.Logf("Current title: %s", title)
	t.Logf("Page content: %s", logutil.TruncateForLog(content, 500))
}
