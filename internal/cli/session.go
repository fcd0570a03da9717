package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/hudl-auth-e2e/internal/authflow"
	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/fakesite"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
	"github.com/kuitang/hudl-auth-e2e/internal/urlutil"
)

const fixtureShutdownTimeout = 5 * time.Second

// fixtureServer serves the page fixture on a real listener.
type fixtureServer struct {
	site *fakesite.Site
	srv  *http.Server
	ln   net.Listener
	done chan error
}

func startFixture(addr string) (*fixtureServer, error) {
	site, err := fakesite.New(fakesite.DefaultAccount)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "listen on "+addr, err)
	}
	f := &fixtureServer{
		site: site,
		srv: &http.Server{
			Handler:           site.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:   ln,
		done: make(chan error, 1),
	}
	go func() {
		err := f.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		f.done <- err
	}()
	obs.Pkg("cli").Info("fixture_listening", "addr", ln.Addr().String())
	return f, nil
}

func (f *fixtureServer) URL() string {
	return "http://" + f.ln.Addr().String()
}

func (f *fixtureServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), fixtureShutdownTimeout)
	defer cancel()
	if err := f.srv.Shutdown(ctx); err != nil {
		return errs.Wrap(errs.Internal, "shut down fixture", err)
	}
	return <-f.done
}

// browserSession owns the Playwright driver, one browser and, for fixture
// runs, the fixture server.
type browserSession struct {
	flows   *authflow.Flows
	pw      *playwright.Playwright
	browser playwright.Browser
	fixture *fixtureServer
}

func openBrowserSession(cfg *config.Config) (*browserSession, error) {
	s := &browserSession{}
	flowCfg := *cfg
	if !cfg.IsLive() {
		fixture, err := startFixture("127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		s.fixture = fixture
		flowCfg.BaseURL = urlutil.BuildAbsolute(fixture.URL(), fakesite.HomePath)
		flowCfg.DisplayName = fixture.site.Account().DisplayName
		flowCfg.Navigation.RPS = 0
	}

	flows, err := authflow.FromConfig(&flowCfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.flows = flows

	pw, err := playwright.Run()
	if err != nil {
		s.Close()
		return nil, errs.Wrap(errs.Unavailable, "start Playwright (run `hudl-e2e install` first)", err)
	}
	s.pw = pw

	var browserType playwright.BrowserType
	switch cfg.Browser {
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}
	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		SlowMo:   playwright.Float(float64(cfg.SlowMo.Milliseconds())),
	})
	if err != nil {
		s.Close()
		return nil, errs.Wrap(errs.Unavailable, "launch "+cfg.Browser, err)
	}
	s.browser = browser
	return s, nil
}

func (s *browserSession) newContext() (playwright.BrowserContext, error) {
	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		Locale: playwright.String(authflow.DefaultLocale),
	})
	if err != nil {
		return nil, errs.Step("open browser context", err)
	}
	bctx.SetDefaultTimeout(s.flows.TimeoutMS())
	bctx.SetDefaultNavigationTimeout(s.flows.TimeoutMS())
	return bctx, nil
}

func (s *browserSession) Close() {
	logger := obs.Pkg("cli")
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			logger.Warn("browser_close_failed", "error", err)
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			logger.Warn("playwright_stop_failed", "error", err)
		}
	}
	if s.fixture != nil {
		if err := s.fixture.Close(); err != nil {
			logger.Warn("fixture_close_failed", "error", err)
		}
	}
}
