package fakesite

import (
	"html/template"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/hudl-auth-e2e/internal/authflow"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
)

func newTestServer(t *testing.T) (*Site, *httptest.Server, *http.Client) {
	t.Helper()
	site, err := New(Account{})
	require.NoError(t, err)
	srv := httptest.NewServer(site.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return site, srv, &http.Client{Jar: jar}
}

func getBody(t *testing.T, client *http.Client, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func postPassword(t *testing.T, client *http.Client, srvURL, email, password string) (*http.Response, string) {
	t.Helper()
	resp, err := client.PostForm(srvURL+"/login/password", url.Values{"email": {email}, "password": {password}})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNew_RejectsPartialAccount(t *testing.T) {
	t.Parallel()
	_, err := New(Account{Email: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestPublicPages(t *testing.T) {
	t.Parallel()
	_, srv, client := newTestServer(t)

	cases := []struct {
		path     string
		contains []string
	}{
		{"/", []string{`href="/login"`, ">Log in<"}},
		{"/en_gb/", []string{">Log in<"}},
		{"/login", []string{`aria-label="Hudl logo mark Hudl"`, `href="/identifier"`}},
		{"/identifier", []string{
			`id="email"`, "required", "Enter a valid email.", "Please fill in this field.",
			"Continue with Google", "Continue with Facebook", "Continue with Apple",
			"Forgot Password", `action="/login/password"`,
		}},
		{"/reset-password", []string{"<h1>Reset Password</h1>"}},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, body := getBody(t, client, srv.URL+tc.path)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
			for _, want := range tc.contains {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestResetPassword_HasSingleHeading(t *testing.T) {
	t.Parallel()
	_, srv, client := newTestServer(t)
	_, body := getBody(t, client, srv.URL+"/reset-password?email=a%40example.com")
	assert.Equal(t, 1, strings.Count(body, "<h1>"))
	assert.NotContains(t, body, "<h2>")
	assert.Contains(t, body, `value="a@example.com"`)
}

func TestSocialRedirects(t *testing.T) {
	t.Parallel()
	_, srv, client := newTestServer(t)

	cases := []struct {
		provider string
		path     string
		heading  string
	}{
		{"google", "/accounts.google.com/v3/signin/identifier", "Sign in with Google"},
		{"Facebook", "/www.facebook.com/login.php", "Log in to Facebook"},
		{"apple", "/appleid.apple.com/auth/authorize", "Apple Account"},
	}
	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			resp, body := getBody(t, client, srv.URL+"/social/"+tc.provider)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tc.path, resp.Request.URL.Path)
			assert.Contains(t, body, "<h1>"+tc.heading+"</h1>")
		})
	}

	resp, _ := getBody(t, client, srv.URL+"/social/twitter")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogin_WrongPasswordRerendersPasswordStep(t *testing.T) {
	t.Parallel()
	site, srv, client := newTestServer(t)

	resp, body := postPassword(t, client, srv.URL, site.Account().Email, "wrong")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/login/password", resp.Request.URL.Path)
	assert.Contains(t, body, CredentialErrorMessage)
	assert.Contains(t, body, `id="step-identifier" data-step hidden`)
	assert.Contains(t, body, `id="step-password" data-step>`)
	assert.Zero(t, site.LoginCount())
	assert.Zero(t, site.ActiveSessions())
}

func TestLogin_SessionLifecycle(t *testing.T) {
	t.Parallel()
	site, srv, client := newTestServer(t)
	account := site.Account()

	resp, _ := getBody(t, client, srv.URL+"/home")
	assert.Equal(t, "/login", resp.Request.URL.Path, "dashboard requires a session")

	resp, body := postPassword(t, client, srv.URL, strings.ToUpper(account.Email), account.Password)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/home", resp.Request.URL.Path)
	assert.Contains(t, body, `id="ssr-webnav"`)
	assert.Contains(t, body, `id="main"`)
	assert.Contains(t, body, "<h2>CA</h2>")
	assert.Contains(t, body, ">"+account.DisplayName+"</button>")
	assert.NotContains(t, body, account.Email)
	assert.EqualValues(t, 1, site.LoginCount())
	assert.Equal(t, 1, site.ActiveSessions())

	resp, _ = getBody(t, client, srv.URL+"/identifier")
	assert.Equal(t, "/home", resp.Request.URL.Path, "signed-in visit skips the form")

	resp, body = getBody(t, client, srv.URL+"/logout")
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, ">Log in<")
	assert.Zero(t, site.ActiveSessions())

	resp, _ = getBody(t, client, srv.URL+"/home")
	assert.Equal(t, "/login", resp.Request.URL.Path)
}

func TestSessionCookie_IsHostOnlyAndHTTPOnly(t *testing.T) {
	t.Parallel()
	site, err := New(Account{})
	require.NoError(t, err)

	form := url.Values{"email": {site.Account().Email}, "password": {site.Account().Password}}
	req := httptest.NewRequest(http.MethodPost, "/login/password", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	site.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Empty(t, cookies[0].Domain)
	assert.Equal(t, "/", cookies[0].Path)
}

func TestDashboard_HeadingUsesHelperInitials(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"(Charles) A", "'Tex' Ritter", "Zoë Ångström", "J. R. R. Tolkien"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			site, err := New(Account{Email: "a@example.com", Password: "pw", DisplayName: name})
			require.NoError(t, err)
			srv := httptest.NewServer(site.Handler())
			t.Cleanup(srv.Close)
			jar, err := cookiejar.New(nil)
			require.NoError(t, err)
			client := &http.Client{Jar: jar}

			resp, body := postPassword(t, client, srv.URL, "a@example.com", "pw")
			require.Equal(t, "/home", resp.Request.URL.Path)
			want := authflow.Initials(name)
			require.NotEmpty(t, want)
			assert.Contains(t, body, "<h2>"+template.HTMLEscapeString(want)+"</h2>")
		})
	}
}
