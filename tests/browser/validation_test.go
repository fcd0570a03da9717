package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/hudl-auth-e2e/internal/authflow"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
)

// =============================================================================
// Validation checks
// =============================================================================

func TestBrowser_ValidationChecks(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	env.InitBrowser(t)
	creds := env.Credentials(t)

	t.Run("invalid email format shows validation error", func(t *testing.T) {
		ctx := env.Context(t)
		page := env.OpenLoginForm(t)
		defer page.Close()

		_, err := env.Flows.TriggerEmailValidation(ctx, page, "invalid-email")
		require.NoError(t, err)
		require.NoError(t, env.Flows.ExpectValidationError(ctx, page))
	})

	t.Run("valid email with wrong password shows error", func(t *testing.T) {
		ctx := env.Context(t)
		page := env.OpenLoginForm(t)
		defer page.Close()

		before := env.LoginCount()
		require.NoError(t, env.Flows.Login(ctx, page, creds.Email, "wrong-password"))
		require.NoError(t, env.Flows.ExpectCredentialError(ctx, page))
		if env.Site != nil {
			assert.Equal(t, before, env.LoginCount())
		}
	})

	t.Run("empty email blocks login", func(t *testing.T) {
		ctx := env.Context(t)
		page := env.OpenLoginForm(t)
		defer page.Close()

		urlBefore := page.URL()
		emailInput, err := env.Flows.TriggerEmailValidation(ctx, page, "")
		require.NoError(t, err)

		message, err := authflow.ValidationMessage(emailInput)
		require.NoError(t, err)
		assert.Contains(t, message, authflow.RequiredFieldMessage)
		assert.Equal(t, urlBefore, page.URL())
	})

	t.Run("missing marker fails as an assertion", func(t *testing.T) {
		if env.Site == nil {
			t.Skip("fixture only")
		}
		ctx := env.Context(t)
		page := env.OpenLoginForm(t)
		defer page.Close()

		err := env.Flows.ExpectCredentialError(ctx, page)
		require.Error(t, err)
		assert.Equal(t, errs.AssertionFailed, errs.CodeOf(err))
	})
}
