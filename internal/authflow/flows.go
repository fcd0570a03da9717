// Package authflow drives the site's authentication UI through Playwright.
//
// Each helper is one sequential workflow step against a page or browser
// context. Elements are located by accessible role and name. Helpers never
// retry: Playwright's own actionability waiting is the only polling, and any
// failure is returned to the caller as a coded error from internal/errs.
package authflow

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/hudl-auth-e2e/internal/config"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/logutil"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
	"github.com/kuitang/hudl-auth-e2e/internal/ratelimit"
)

// Accessible names the helpers depend on.
const (
	LoginLinkName      = "Log in"
	LogoLinkName       = "Hudl logo mark Hudl"
	EmailFieldName     = "Email"
	PasswordFieldName  = "Password"
	ContinueButtonName = "Continue"
	ForgotPasswordName = "Forgot Password"
	LogOutLinkName     = "Log Out"

	WebNavSelector = "#ssr-webnav"
	MainSelector   = "#main"

	InvalidEmailMessage    = "Enter a valid email."
	CredentialErrorPrefix  = "Your email or password is"
	RequiredFieldMessage   = "Please fill in this field"
	ResetPasswordHeading   = "Reset Password"
	DefaultLocale          = "en-GB"
	defaultAssertTimeoutMS = 5000
)

var resetPasswordURL = regexp.MustCompile(`reset-password`)

// Options configures a Flows.
type Options struct {
	BaseURL     string
	DisplayName string
	Timeout     time.Duration
	Pacer       *ratelimit.Pacer
}

// Flows holds the static data the helpers need. It is safe for concurrent
// use; pages and contexts passed to it are not.
type Flows struct {
	baseURL     string
	displayName string
	initials    string
	hostPattern *regexp.Regexp
	timeoutMS   float64
	pacer       *ratelimit.Pacer
	expect      playwright.PlaywrightAssertions
}

// New validates opts and returns a Flows.
func New(opts Options) (*Flows, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil || u.Host == "" {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("base URL %q must be absolute", opts.BaseURL))
	}
	name := strings.TrimSpace(opts.DisplayName)
	if name == "" {
		return nil, errs.New(errs.InvalidArgument, "display name must not be empty")
	}
	timeoutMS := float64(defaultAssertTimeoutMS)
	if opts.Timeout > 0 {
		timeoutMS = float64(opts.Timeout.Milliseconds())
	}
	return &Flows{
		baseURL:     u.String(),
		displayName: name,
		initials:    Initials(name),
		hostPattern: HostPattern(u.Host),
		timeoutMS:   timeoutMS,
		pacer:       opts.Pacer,
		expect:      playwright.NewPlaywrightAssertions(timeoutMS),
	}, nil
}

// FromConfig builds a Flows from suite configuration.
func FromConfig(cfg *config.Config) (*Flows, error) {
	return New(Options{
		BaseURL:     cfg.BaseURL,
		DisplayName: cfg.DisplayName,
		Timeout:     cfg.Timeout,
		Pacer:       ratelimit.NewPacer(cfg.Navigation),
	})
}

// BaseURL returns the home page URL.
func (f *Flows) BaseURL() string { return f.baseURL }

// DisplayName returns the account name shown in the navigation bar.
func (f *Flows) DisplayName() string { return f.displayName }

// Initials returns the dashboard avatar heading.
func (f *Flows) Initials() string { return f.initials }

// HostPattern matches any URL on the site's host.
func (f *Flows) HostPattern() *regexp.Regexp { return f.hostPattern }

// TimeoutMS returns the action and assertion timeout in milliseconds.
func (f *Flows) TimeoutMS() float64 { return f.timeoutMS }

// Initials returns the upper-cased first letter of each word in name.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
	}
	return b.String()
}

// HostPattern builds an unanchored pattern matching any URL that contains
// host. A leading "www." is optional so redirects between the bare and www
// hosts still match.
func HostPattern(host string) *regexp.Regexp {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	return regexp.MustCompile(regexp.QuoteMeta(host))
}

// NavigateToLoginPage loads the home page, follows "Log in", then the
// logo link that leads to the sign-in form.
func (f *Flows) NavigateToLoginPage(ctx context.Context, page playwright.Page) error {
	f.step(ctx, "navigate_to_login", "url", f.baseURL)
	if err := f.gotoURL(ctx, page, f.baseURL); err != nil {
		return err
	}
	if err := click("click Log in link", linkByName(page, LoginLinkName)); err != nil {
		return err
	}
	return f.OpenSignInForm(ctx, page)
}

// OpenSignInForm follows the logo link on the login chooser to the sign-in
// form. A signed-in session is redirected to the dashboard instead.
func (f *Flows) OpenSignInForm(ctx context.Context, page playwright.Page) error {
	f.step(ctx, "open_sign_in_form")
	return click("click Hudl logo link", linkByName(page, LogoLinkName))
}

// Login fills the email, goes through both Continue steps, then submits the
// password.
func (f *Flows) Login(ctx context.Context, page playwright.Page, email, password string) error {
	f.step(ctx, "login", "email", logutil.MaskEmail(email))
	if err := fillEmail(page, email); err != nil {
		return err
	}
	if err := click("click Continue after email", continueButton(page, true)); err != nil {
		return err
	}
	if err := click("click Continue on method step", continueButton(page, false)); err != nil {
		return err
	}
	passwordInput := textboxByName(page, PasswordFieldName)
	if err := click("focus Password", passwordInput); err != nil {
		return err
	}
	if err := errs.Step("fill Password", passwordInput.Fill(password)); err != nil {
		return err
	}
	return click("submit password", continueButton(page, false))
}

// VerifyLoginSuccess asserts the authenticated dashboard markers: the
// initials heading, the display name in the navigation bar and the main
// content region.
func (f *Flows) VerifyLoginSuccess(ctx context.Context, page playwright.Page) error {
	f.step(ctx, "verify_login_success", "initials", f.initials)
	heading := page.GetByRole(*playwright.AriaRoleHeading, playwright.PageGetByRoleOptions{Name: f.initials})
	if err := f.expect.Locator(heading).ToBeVisible(); err != nil {
		return assertion(fmt.Sprintf("heading %q visible", f.initials), err)
	}
	if err := f.expect.Locator(page.Locator(WebNavSelector)).ToContainText(f.displayName); err != nil {
		return assertion(fmt.Sprintf("%s contains %q", WebNavSelector, f.displayName), err)
	}
	if err := f.expect.Locator(page.Locator(MainSelector)).ToBeVisible(); err != nil {
		return assertion(MainSelector+" visible", err)
	}
	return nil
}

// Logout opens the user menu by its display name and follows "Log Out".
func (f *Flows) Logout(ctx context.Context, page playwright.Page) error {
	f.step(ctx, "logout")
	if err := click("open user menu", page.GetByText(f.displayName)); err != nil {
		return err
	}
	return click("click Log Out", linkByName(page, LogOutLinkName))
}

// ExpectLoggedOut asserts the page is back on the site's host with a
// visible "Log in" link.
func (f *Flows) ExpectLoggedOut(ctx context.Context, page playwright.Page) error {
	f.step(ctx, "expect_logged_out")
	if err := f.expect.Page(page).ToHaveURL(f.hostPattern); err != nil {
		return assertion("URL matches "+f.hostPattern.String(), err)
	}
	if err := f.expect.Locator(linkByName(page, LoginLinkName)).ToBeVisible(); err != nil {
		return assertion("Log in link visible", err)
	}
	return nil
}

// InitiatePasswordReset submits email and follows "Forgot Password".
func (f *Flows) InitiatePasswordReset(ctx context.Context, page playwright.Page, email string) error {
	f.step(ctx, "initiate_password_reset", "email", logutil.MaskEmail(email))
	if err := fillEmail(page, email); err != nil {
		return err
	}
	if err := click("click Continue after email", continueButton(page, true)); err != nil {
		return err
	}
	return click("click Forgot Password", linkByName(page, ForgotPasswordName))
}

// ExpectPasswordResetPage asserts the reset URL and heading.
func (f *Flows) ExpectPasswordResetPage(ctx context.Context, page playwright.Page) error {
	f.step(ctx, "expect_password_reset_page")
	if err := f.expect.Page(page).ToHaveURL(resetPasswordURL); err != nil {
		return assertion("URL matches "+resetPasswordURL.String(), err)
	}
	heading := page.GetByRole(*playwright.AriaRoleHeading)
	if err := f.expect.Locator(heading).ToContainText(ResetPasswordHeading); err != nil {
		return assertion(fmt.Sprintf("heading contains %q", ResetPasswordHeading), err)
	}
	return nil
}

// VerifySocialLoginNavigation clicks the provider's button and asserts the
// landing URL and marker text.
func (f *Flows) VerifySocialLoginNavigation(ctx context.Context, page playwright.Page, provider Provider) error {
	cfg, ok := provider.Config()
	if !ok {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("unknown provider %v", provider))
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Provider: provider.String()})
	f.step(ctx, "verify_social_login", "button", cfg.ButtonName)

	button := page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: cfg.ButtonName})
	if err := f.expect.Locator(button).ToBeVisible(); err != nil {
		return assertion(fmt.Sprintf("button %q visible", cfg.ButtonName), err)
	}
	if err := click("click "+cfg.ButtonName, button); err != nil {
		return err
	}
	if err := f.expect.Page(page).ToHaveURL(cfg.URLPattern); err != nil {
		return assertion(fmt.Sprintf("%s URL matches %s", provider, cfg.URLPattern), err)
	}

	var marker playwright.Locator
	if cfg.ExactText {
		marker = page.GetByText(cfg.ExpectedText, playwright.PageGetByTextOptions{Exact: playwright.Bool(true)})
	} else {
		marker = page.GetByText(cfg.ExpectedText)
	}
	if err := f.expect.Locator(marker).ToBeVisible(); err != nil {
		return assertion(fmt.Sprintf("%s text %q visible", provider, cfg.ExpectedText), err)
	}
	return nil
}

// TriggerEmailValidation fills email (possibly empty), clicks Continue and
// returns the email input so the caller can inspect its validation state.
func (f *Flows) TriggerEmailValidation(ctx context.Context, page playwright.Page, email string) (playwright.Locator, error) {
	f.step(ctx, "trigger_email_validation", "email", logutil.MaskEmail(email), "empty", email == "")
	emailInput := textboxByName(page, EmailFieldName)
	if err := click("focus Email", emailInput); err != nil {
		return nil, err
	}
	if err := errs.Step("fill Email", emailInput.Fill(email)); err != nil {
		return nil, err
	}
	if err := click("click Continue after email", continueButton(page, true)); err != nil {
		return nil, err
	}
	return emailInput, nil
}

// ExpectVisibleText asserts text (substring match) is visible on page.
func (f *Flows) ExpectVisibleText(ctx context.Context, page playwright.Page, text string) error {
	f.step(ctx, "expect_visible_text", "text", text)
	if err := f.expect.Locator(page.GetByText(text)).ToBeVisible(); err != nil {
		return assertion(fmt.Sprintf("text %q visible", text), err)
	}
	return nil
}

// ExpectValidationError asserts the inline invalid-email message.
func (f *Flows) ExpectValidationError(ctx context.Context, page playwright.Page) error {
	return f.ExpectVisibleText(ctx, page, InvalidEmailMessage)
}

// ExpectCredentialError asserts the wrong-credentials message.
func (f *Flows) ExpectCredentialError(ctx context.Context, page playwright.Page) error {
	return f.ExpectVisibleText(ctx, page, CredentialErrorPrefix)
}

// ValidationMessage returns the native validationMessage of an input.
func ValidationMessage(input playwright.Locator) (string, error) {
	result, err := input.Evaluate("el => el.validationMessage", nil)
	if err != nil {
		return "", errs.Step("read validationMessage", err)
	}
	msg, ok := result.(string)
	if !ok {
		return "", errs.New(errs.Internal, fmt.Sprintf("validationMessage has type %T", result))
	}
	return msg, nil
}

func (f *Flows) gotoURL(ctx context.Context, page playwright.Page, target string) error {
	if err := f.pacer.Wait(ctx, target); err != nil {
		return errs.Wrap(errs.Unavailable, "pace navigation", err)
	}
	_, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return errs.Step("goto "+target, err)
}

func (f *Flows) step(ctx context.Context, name string, args ...any) {
	obs.From(ctx).With("pkg", "authflow").Debug("step", append([]any{"step", name}, args...)...)
}

func fillEmail(page playwright.Page, email string) error {
	emailInput := textboxByName(page, EmailFieldName)
	if err := click("focus Email", emailInput); err != nil {
		return err
	}
	return errs.Step("fill Email", emailInput.Fill(email))
}

func linkByName(page playwright.Page, name string) playwright.Locator {
	return page.GetByRole(*playwright.AriaRoleLink, playwright.PageGetByRoleOptions{Name: name})
}

func textboxByName(page playwright.Page, name string) playwright.Locator {
	return page.GetByRole(*playwright.AriaRoleTextbox, playwright.PageGetByRoleOptions{Name: name})
}

func continueButton(page playwright.Page, exact bool) playwright.Locator {
	opts := playwright.PageGetByRoleOptions{Name: ContinueButtonName}
	if exact {
		opts.Exact = playwright.Bool(true)
	}
	return page.GetByRole(*playwright.AriaRoleButton, opts)
}

func click(step string, l playwright.Locator) error {
	return errs.Step(step, l.Click())
}

func assertion(what string, err error) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.AssertionFailed, what, err)
}
