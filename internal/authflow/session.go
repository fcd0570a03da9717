package authflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/hudl-auth-e2e/internal/errs"
)

// SetupSession opens a page in bctx, loads url and follows "Log in".
// The page is closed again if any step fails.
func (f *Flows) SetupSession(ctx context.Context, bctx playwright.BrowserContext, url string) (playwright.Page, error) {
	f.step(ctx, "setup_session", "url", url)
	page, err := bctx.NewPage()
	if err != nil {
		return nil, errs.Step("open page", err)
	}
	if err := f.gotoURL(ctx, page, url); err != nil {
		_ = page.Close()
		return nil, err
	}
	if err := click("click Log in link", linkByName(page, LoginLinkName)); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

// SaveAuthState creates filePath's parent directory if needed, then has
// Playwright write the context's session document to filePath. An existing
// file is overwritten. The document is never read here.
func (f *Flows) SaveAuthState(ctx context.Context, bctx playwright.BrowserContext, filePath string) error {
	f.step(ctx, "save_auth_state", "path", filePath)
	if filePath == "" {
		return errs.New(errs.InvalidArgument, "session state path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return errs.Wrap(errs.Internal, "create session state directory", err)
	}
	if _, err := bctx.StorageState(filePath); err != nil {
		return errs.Step("capture session state", err)
	}
	return nil
}

// NewContextFromState opens a browser context rehydrated from the session
// document at filePath.
func (f *Flows) NewContextFromState(ctx context.Context, browser playwright.Browser, filePath string) (playwright.BrowserContext, error) {
	f.step(ctx, "new_context_from_state", "path", filePath)
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.NotFound, "session state "+filePath+" does not exist", err)
		}
		return nil, errs.Wrap(errs.Internal, "stat session state", err)
	}
	if info.IsDir() {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("session state %s is a directory", filePath))
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		StorageStatePath: playwright.String(filePath),
		Locale:           playwright.String(DefaultLocale),
	})
	if err != nil {
		return nil, errs.Step("open context from session state", err)
	}
	bctx.SetDefaultTimeout(f.timeoutMS)
	bctx.SetDefaultNavigationTimeout(f.timeoutMS)
	return bctx, nil
}
