package cli

import (
	"fmt"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"

	"github.com/kuitang/hudl-auth-e2e/internal/authflow"
	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/fakesite"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
	"github.com/kuitang/hudl-auth-e2e/internal/statestore"
	"github.com/kuitang/hudl-auth-e2e/internal/urlutil"
)

func newInstallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Playwright driver and the configured browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			obs.Pkg("cli").Info("install_start", "browser", a.cfg.Browser)
			err := playwright.Install(&playwright.RunOptions{
				Browsers: []string{a.cfg.Browser},
				Verbose:  true,
			})
			if err != nil {
				return errs.Wrap(errs.Unavailable, "install Playwright", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed Playwright driver and %s\n", a.cfg.Browser)
			return nil
		},
	}
}

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in, verify the dashboard and save the session document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.context(cmd.Context(), "login")
			creds, err := a.credentials()
			if err != nil {
				return err
			}
			store, err := statestore.FromConfig(ctx, a.cfg)
			if err != nil {
				return err
			}

			s, err := openBrowserSession(a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			bctx, err := s.newContext()
			if err != nil {
				return err
			}
			defer bctx.Close()

			page, err := s.flows.SetupSession(ctx, bctx, s.flows.BaseURL())
			if err != nil {
				return err
			}
			if err := s.flows.OpenSignInForm(ctx, page); err != nil {
				return err
			}
			if err := s.flows.Login(ctx, page, creds.Email, creds.Password); err != nil {
				return err
			}
			if err := s.flows.VerifyLoginSuccess(ctx, page); err != nil {
				return err
			}
			if err := s.flows.SaveAuthState(ctx, bctx, a.cfg.StorageFile); err != nil {
				return err
			}
			if err := store.Push(ctx, a.cfg.StorageFile); err != nil {
				return err
			}
			obs.From(ctx).Info("session_saved", "path", a.cfg.StorageFile, "location", store.Location(), "account", creds)
			fmt.Fprintf(cmd.OutOrStdout(), "session saved to %s\n", store.Location())
			return nil
		},
	}
}

func newCheckSessionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-session",
		Short: "Reopen the saved session and verify it is still signed in",
		Long: `check-session restores the session document saved by login and verifies
the dashboard without submitting credentials.

The in-process fixture does not outlive a command, so this needs a site that
persists between runs: E2E_TARGET=live against the real site or against
"hudl-e2e serve-fixture".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.IsLive() {
				return errs.New(errs.InvalidArgument,
					"check-session needs a persistent site: set "+config.KeyTarget+"=live (serve-fixture can stand in)")
			}
			ctx := a.context(cmd.Context(), "check-session")
			store, err := statestore.FromConfig(ctx, a.cfg)
			if err != nil {
				return err
			}
			if err := store.Pull(ctx, a.cfg.StorageFile); err != nil {
				return err
			}

			s, err := openBrowserSession(a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			bctx, err := s.flows.NewContextFromState(ctx, s.browser, a.cfg.StorageFile)
			if err != nil {
				return err
			}
			defer bctx.Close()

			page, err := bctx.NewPage()
			if err != nil {
				return errs.Step("open page", err)
			}
			if err := s.flows.NavigateToLoginPage(ctx, page); err != nil {
				return err
			}
			if err := s.flows.VerifyLoginSuccess(ctx, page); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session in %s is signed in\n", a.cfg.StorageFile)
			return nil
		},
	}
}

func newSocialCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "social <provider>",
		Short:     "Check that a social login button reaches its provider",
		ValidArgs: []string{"google", "facebook", "apple"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := authflow.ParseProvider(args[0])
			if err != nil {
				return err
			}
			ctx := a.context(cmd.Context(), "social")

			s, err := openBrowserSession(a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			bctx, err := s.newContext()
			if err != nil {
				return err
			}
			defer bctx.Close()

			page, err := bctx.NewPage()
			if err != nil {
				return errs.Step("open page", err)
			}
			if err := s.flows.NavigateToLoginPage(ctx, page); err != nil {
				return err
			}
			if err := s.flows.VerifySocialLoginNavigation(ctx, page, provider); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s login button reached %s\n", provider, page.URL())
			return nil
		},
	}
}

func newServeFixtureCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-fixture",
		Short: "Serve the local page fixture until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixture, err := startFixture(addr)
			if err != nil {
				return err
			}
			account := fixture.site.Account()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# point the live target at the fixture:")
			fmt.Fprintf(out, "%s=%s\n", config.KeyTarget, config.TargetLive)
			fmt.Fprintf(out, "%s=%s\n", config.KeyBaseURL, urlutil.BuildAbsolute(fixture.URL(), fakesite.HomePath))
			fmt.Fprintf(out, "%s=%s\n", config.KeyEmail, account.Email)
			fmt.Fprintf(out, "%s=%s\n", config.KeyPassword, account.Password)
			fmt.Fprintf(out, "%s=%s\n", config.KeyDisplayName, account.DisplayName)

			<-cmd.Context().Done()
			obs.Pkg("cli").Info("fixture_stopping", "logins", fixture.site.LoginCount())
			return fixture.Close()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8089", "listen address")
	return cmd
}
