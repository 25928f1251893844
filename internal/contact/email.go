package contact

import (
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

var (
	addressPattern  = regexp.MustCompile(`^[a-z0-9._%+\-']+@[a-z0-9.-]+\.[a-z]{2,}$`)
	numericDomain   = regexp.MustCompile(`@\d+\.`)
	idnaProfile     = idna.Lookup
	freeMailDomains = map[string]struct{}{
		"gmail.com":      {},
		"googlemail.com": {},
		"yahoo.com":      {},
		"hotmail.com":    {},
		"outlook.com":    {},
		"live.com":       {},
		"icloud.com":     {},
		"aol.com":        {},
		"mail.ru":        {},
		"yandex.ru":      {},
		"protonmail.com": {},
		"gmx.com":        {},
	}
	// regionalProviders are accepted even though some have numeric names.
	regionalProviders = map[string]struct{}{
		"qq.com":   {},
		"163.com":  {},
		"126.com":  {},
		"yeah.net": {},
		"sina.com": {},
	}
)

// NormalizeEmail lowercases and trims an address, stripping mailto: prefixes
// and query strings. It returns "" when the result is not a plausible address.
func NormalizeEmail(raw string) string {
	email := strings.TrimSpace(raw)
	if len(email) >= 7 && strings.EqualFold(email[:7], "mailto:") {
		email = email[7:]
	}
	if idx := strings.IndexAny(email, "?#"); idx >= 0 {
		email = email[:idx]
	}
	email = strings.ToLower(strings.Trim(email, " .,;:<>\"'()[]"))
	if email == "" || !addressPattern.MatchString(email) {
		return ""
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ""
	}
	return email
}

// EmailDomain returns the ASCII domain part of an address.
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return asciiHost(email[at+1:])
}

// IsBusinessEmail accepts any syntactically valid address whose domain is not
// a consumer free-mail provider. Regional business providers are accepted.
func IsBusinessEmail(raw string) bool {
	email := NormalizeEmail(raw)
	if email == "" {
		return false
	}
	domain := EmailDomain(email)
	if domain == "" || !strings.Contains(domain, ".") {
		return false
	}
	if _, ok := regionalProviders[domain]; ok {
		return true
	}
	if numericDomain.MatchString(email) {
		return false
	}
	_, free := freeMailDomains[domain]
	return !free
}

// RegistrableDomain reduces a host to its registrable domain (eTLD+1),
// e.g. "shop.acme.co.uk" becomes "acme.co.uk".
func RegistrableDomain(host string) string {
	host = asciiHost(host)
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

func asciiHost(host string) string {
	host = strings.ToLower(strings.Trim(strings.TrimSpace(host), "."))
	if host == "" {
		return ""
	}
	ascii, err := idnaProfile.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}
