package logutil

import (
	"net/http"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"password", "HUDL_PASSWORD", "Set-Cookie", "Authorization", "api_token", "client-secret", "storage_state"} {
		if !IsSensitiveLogField(key) {
			t.Errorf("expected %q to be sensitive", key)
		}
	}
	for _, key := range []string{"email", "step", "url", "provider"} {
		if IsSensitiveLogField(key) {
			t.Errorf("expected %q to be non-sensitive", key)
		}
	}
}

func testMaskEmail_NeverLeaksLocalPart(t *rapid.T) {
	local := rapid.StringMatching(`[a-z0-9.]{2,20}`).Draw(t, "local")
	domain := rapid.StringMatching(`[a-z]{2,10}\.(com|co\.uk|org)`).Draw(t, "domain")
	email := local + "@" + domain

	got := MaskEmail(email)
	if !strings.HasSuffix(got, "@"+domain) {
		t.Fatalf("masked email %q lost domain %q", got, domain)
	}
	if strings.Contains(got[:strings.LastIndex(got, "@")], local) {
		t.Fatalf("masked email %q leaks local part %q", got, local)
	}
	if got[0] != local[0] {
		t.Fatalf("masked email %q should keep first character of %q", got, local)
	}
}

func TestMaskEmail_NeverLeaksLocalPart(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testMaskEmail_NeverLeaksLocalPart)
}

func TestMaskEmail_EdgeCases(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":              "",
		"invalid-email": "***",
		"@example.com":  "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatHeadersForLog_RedactsSensitive(t *testing.T) {
	t.Parallel()
	h := http.Header{}
	h.Set("Cookie", "session=abc")
	h.Set("Content-Type", "text/html")

	got := FormatHeadersForLog(h)
	if strings.Contains(got, "abc") {
		t.Fatalf("cookie value leaked: %s", got)
	}
	if !strings.Contains(got, `content-type="text/html"`) {
		t.Fatalf("content type missing: %s", got)
	}
	if FormatHeadersForLog(nil) != "{}" {
		t.Fatal("empty headers should format as {}")
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()
	if got := TruncateForLog("  a\nb  ", 0); got != `a\nb` {
		t.Fatalf("got %q", got)
	}
	if got := TruncateForLog("abcdef", 3); got != "abc... [truncated]" {
		t.Fatalf("got %q", got)
	}
}
