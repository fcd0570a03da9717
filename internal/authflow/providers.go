package authflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kuitang/hudl-auth-e2e/internal/errs"
)

// Provider is a social-login provider offered on the identifier page.
type Provider int

const (
	Google Provider = iota + 1
	Facebook
	Apple
)

// ProviderConfig describes a provider's button and the page it lands on.
type ProviderConfig struct {
	ButtonName   string
	URLPattern   *regexp.Regexp
	ExpectedText string
	// ExactText requires an exact text match. Apple's page repeats the
	// marker inside longer strings.
	ExactText bool
}

var (
	googleURL   = regexp.MustCompile(`accounts\.google\.com`)
	facebookURL = regexp.MustCompile(`facebook\.com`)
	appleURL    = regexp.MustCompile(`appleid\.apple\.com`)
)

// Providers returns every provider in declaration order.
func Providers() []Provider {
	return []Provider{Google, Facebook, Apple}
}

// Config returns the provider's fixed configuration. ok is false for values
// outside the enumeration.
func (p Provider) Config() (cfg ProviderConfig, ok bool) {
	switch p {
	case Google:
		return ProviderConfig{
			ButtonName:   "Continue with Google",
			URLPattern:   googleURL,
			ExpectedText: "Sign in with Google",
		}, true
	case Facebook:
		return ProviderConfig{
			ButtonName:   "Continue with Facebook",
			URLPattern:   facebookURL,
			ExpectedText: "Log in to Facebook",
		}, true
	case Apple:
		return ProviderConfig{
			ButtonName:   "Continue with Apple",
			URLPattern:   appleURL,
			ExpectedText: "Apple Account",
			ExactText:    true,
		}, true
	default:
		return ProviderConfig{}, false
	}
}

func (p Provider) String() string {
	switch p {
	case Google:
		return "Google"
	case Facebook:
		return "Facebook"
	case Apple:
		return "Apple"
	default:
		return fmt.Sprintf("Provider(%d)", int(p))
	}
}

// ParseProvider maps a case-insensitive provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	normalized := strings.TrimSpace(name)
	for _, p := range Providers() {
		if strings.EqualFold(normalized, p.String()) {
			return p, nil
		}
	}
	return 0, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown provider %q (want Google, Facebook or Apple)", name))
}
