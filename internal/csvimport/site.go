package csvimport

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// ExtractEmail returns the first email address found in s, or "".
func ExtractEmail(s string) string {
	return emailPattern.FindString(s)
}

// NormalizeURL reduces raw to scheme://host, defaulting the scheme to https.
// It returns "" for empty, "nan", or unparseable input.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// SiteNameFromURL derives a display name from the registrable domain of a
// URL: "https://accounts.google.com" becomes "Google".
func SiteNameFromURL(raw string) string {
	normalized := NormalizeURL(raw)
	if normalized == "" {
		return "Unknown"
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "Unknown"
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	if host == "" {
		return "Unknown"
	}
	if net.ParseIP(host) != nil {
		return host
	}

	label := host
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		label = registrable
	}
	label, _, _ = strings.Cut(label, ".")
	return cases.Title(language.Und).String(label)
}

// slugURL synthesizes https://www.<slug>.com from a site name, keeping only
// ASCII letters and digits. It returns "" when nothing is left.
func slugURL(siteName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(siteName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "https://www." + b.String() + ".com"
}
