// Package fakesite serves a local stand-in for the site's public and
// authentication pages. Pages carry the same accessible names, selectors and
// messages as the live site so the browser suite can run without network
// access or a real account.
package fakesite

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kuitang/hudl-auth-e2e/internal/authflow"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/logutil"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
)

//go:embed templates/*.html
var templateFS embed.FS

// SessionCookieName is the cookie that carries a signed-in session.
const SessionCookieName = "hudl_fixture_session"

// HomePath is the localized home page, matching the live site's layout.
const HomePath = "/en_gb/"

// CredentialErrorMessage is shown when the password step fails.
const CredentialErrorMessage = "Your email or password is incorrect. Try again."

// Account is the single account the site accepts.
type Account struct {
	Email       string
	Password    string
	DisplayName string
}

// DefaultAccount is used when New is given a zero Account.
var DefaultAccount = Account{
	Email:       "charles.a@example.com",
	Password:    "correct-horse-battery-staple",
	DisplayName: "Charles A",
}

type providerPage struct {
	path    string
	heading string
	detail  string
}

// Landing paths embed the provider's host so URL assertions written for the
// live redirects also match here.
var providerPages = map[string]providerPage{
	"google": {
		path:    "/accounts.google.com/v3/signin/identifier",
		heading: "Sign in with Google",
		detail:  "to continue to Hudl",
	},
	"facebook": {
		path:    "/www.facebook.com/login.php",
		heading: "Log in to Facebook",
		detail:  "Log in to continue to Hudl.",
	},
	"apple": {
		path:    "/appleid.apple.com/auth/authorize",
		heading: "Apple Account",
		detail:  "Use your Apple Account to sign in to Hudl.",
	},
}

// Site is an http.Handler factory holding in-memory sessions.
type Site struct {
	account   Account
	initials  string
	templates map[string]*template.Template

	mu       sync.Mutex
	sessions map[string]string

	logins atomic.Int64
}

// New parses the embedded templates and returns a Site for account.
func New(account Account) (*Site, error) {
	if account == (Account{}) {
		account = DefaultAccount
	}
	if account.Email == "" || account.Password == "" || account.DisplayName == "" {
		return nil, errs.New(errs.InvalidArgument, "fixture account needs email, password and display name")
	}
	s := &Site{
		account:   account,
		initials:  authflow.Initials(account.DisplayName),
		templates: make(map[string]*template.Template),
		sessions:  make(map[string]string),
	}
	for _, page := range []string{"home", "login", "identifier", "dashboard", "reset", "provider"} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+page+".html")
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "parse template "+page, err)
		}
		s.templates[page] = tmpl
	}
	return s, nil
}

// Account returns the account the site accepts.
func (s *Site) Account() Account { return s.account }

// LoginCount reports how many password submissions succeeded.
func (s *Site) LoginCount() int64 { return s.logins.Load() }

// ActiveSessions reports how many session cookies are currently valid.
func (s *Site) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Handler returns the site's routes wrapped with request correlation and
// access logging.
func (s *Site) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET "+HomePath+"{$}", s.handleHome)
	mux.HandleFunc("GET /login", s.handleLoginChooser)
	mux.HandleFunc("GET /identifier", s.handleIdentifier)
	mux.HandleFunc("POST /login/password", s.handlePassword)
	mux.HandleFunc("GET /home", s.handleDashboard)
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("GET /reset-password", s.handleResetPassword)
	mux.HandleFunc("GET /social/{provider}", s.handleSocial)
	for _, p := range providerPages {
		mux.HandleFunc("GET "+p.path, s.handleProvider(p))
	}
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("fakesite", mux))
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Site) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "home", nil)
}

func (s *Site) handleLoginChooser(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login", nil)
}

type identifierData struct {
	Step  string
	Email string
	Error string
}

func (s *Site) handleIdentifier(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionEmail(r); ok {
		http.Redirect(w, r, "/home", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "identifier", identifierData{Step: "identifier"})
}

func (s *Site) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	logger := obs.From(r.Context()).With("pkg", "fakesite")
	logger.Debug("password_submitted", "headers", logutil.FormatHeadersForLog(r.Header))

	if !strings.EqualFold(email, s.account.Email) || password != s.account.Password {
		logger.Info("login_rejected", "email", logutil.MaskEmail(email))
		s.render(w, r, http.StatusOK, "identifier", identifierData{
			Step:  "password",
			Email: email,
			Error: CredentialErrorMessage,
		})
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = s.account.Email
	s.mu.Unlock()
	s.logins.Add(1)
	logger.Info("login_accepted", "email", logutil.MaskEmail(email))

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

type dashboardData struct {
	DisplayName string
	Initials    string
	MaskedEmail string
}

func (s *Site) handleDashboard(w http.ResponseWriter, r *http.Request) {
	email, ok := s.sessionEmail(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", dashboardData{
		DisplayName: s.account.DisplayName,
		Initials:    s.initials,
		MaskedEmail: logutil.MaskEmail(email),
	})
}

func (s *Site) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Site) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "reset", struct{ Email string }{r.URL.Query().Get("email")})
}

func (s *Site) handleSocial(w http.ResponseWriter, r *http.Request) {
	p, ok := providerPages[strings.ToLower(r.PathValue("provider"))]
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, p.path, http.StatusFound)
}

func (s *Site) handleProvider(p providerPage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "provider", struct{ Heading, Detail string }{p.heading, p.detail})
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Site) sessionEmail(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.sessions[c.Value]
	return email, ok
}

func (s *Site) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		obs.From(r.Context()).With("pkg", "fakesite").Error("render_failed", "page", page, "error", err)
	}
}
