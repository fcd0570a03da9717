// Package cli implements the hudl-e2e command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/fakesite"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
)

// app carries state shared by every subcommand after flags are parsed.
type app struct {
	envFile string
	source  *viper.Viper
	cfg     *config.Config
	runID   string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "hudl-e2e",
		Short: "Browser checks for the Hudl login, logout, reset and social flows",
		Long: `hudl-e2e drives the Hudl authentication pages in a real browser.

With E2E_TARGET=fixture (the default) commands run against a local page
fixture and its built-in account. With E2E_TARGET=live they use
HUDL_BASE_URL, HUDL_EMAIL and HUDL_PASSWORD.

Configuration is read from the environment and an optional .env file.
Flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file to read (default $ENV_FILE or .env)")
	flags.String("target", string(config.TargetFixture), "fixture or live")
	flags.String("base-url", config.DefaultBaseURL, "home page URL of the site under test")
	flags.String("browser", "chromium", "chromium, firefox or webkit")
	flags.Bool("headless", true, "run the browser without a window")
	flags.Duration("timeout", 0, "action and assertion timeout (default $E2E_TIMEOUT or 30s)")
	flags.String("storage-file", config.DefaultStorageFile, "session document path")
	flags.String("log-level", "info", "debug, info, warn or error")

	root.AddCommand(
		newInstallCommand(a),
		newLoginCommand(a),
		newCheckSessionCommand(a),
		newSocialCommand(a),
		newServeFixtureCommand(a),
	)
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

var flagKeys = map[string]string{
	"target":       config.KeyTarget,
	"base-url":     config.KeyBaseURL,
	"browser":      config.KeyBrowser,
	"headless":     config.KeyHeadless,
	"timeout":      config.KeyTimeout,
	"storage-file": config.KeyStorageFile,
	"log-level":    config.KeyLogLevel,
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewSource(a.envFile)
	if err != nil {
		return err
	}
	// Only flags the user actually set override the environment.
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return err
	}

	obs.Init()
	obs.SetLevel(cfg.LogLevel)

	a.source = v
	a.cfg = cfg
	a.runID = obs.NewRunID()
	return nil
}

func (a *app) context(ctx context.Context, scenario string) context.Context {
	ctx = obs.WithCorrelation(ctx, obs.Correlation{
		RunID:   a.runID,
		Browser: a.cfg.Browser,
	})
	return obs.WithScenario(ctx, scenario)
}

// credentials returns the fixture account or the configured live account.
func (a *app) credentials() (config.Credentials, error) {
	if !a.cfg.IsLive() {
		return config.Credentials{
			Email:    fakesite.DefaultAccount.Email,
			Password: fakesite.DefaultAccount.Password,
		}, nil
	}
	return config.CredentialsFrom(a.source)
}
