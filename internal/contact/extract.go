package contact

import (
	"io"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/net/html"
)

// Extraction patterns. Emails are matched case-insensitively anywhere in the
// decoded page text and attribute values; phones follow the loose
// international layout "+CC (AREA) NNN NNNN".
var (
	emailToken = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneToken = regexp.MustCompile(`(?:(?:\+?\d{1,3}[\s-]?)?(?:\(?\d{2,4}\)?[\s-]?)?\d{3,4}[\s-]?\d{3,4})`)
	nonPhone   = regexp.MustCompile(`[^\d+]`)
)

const minPhoneDigits = 7

// placeholderDomains and noiseMarkers form the false-positive deny-list:
// template placeholders, site builders and analytics/error-tracking snippets
// that embed address-like tokens.
var (
	placeholderDomains = map[string]struct{}{
		"example.com":    {},
		"example.org":    {},
		"example.net":    {},
		"test.com":       {},
		"domain.com":     {},
		"yourdomain.com": {},
		"email.com":      {},
		"wix.com":        {},
		"wixpress.com":   {},
		"sentry.io":      {},
	}
	noiseMarkers  = []string{"sentry", "gtag", "@w.org", "noreply", "no-reply"}
	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// Extraction holds the contact tokens found on one page, in discovery order.
type Extraction struct {
	Emails []string
	Phones []string
}

// Extract pulls business emails and phone numbers out of an HTML document.
// region is an ISO 3166 code used to format local phone numbers as E.164.
func Extract(r io.Reader, region string) Extraction {
	text := pageText(r)

	var out Extraction
	seenEmail := map[string]struct{}{}
	for _, raw := range emailToken.FindAllString(text, -1) {
		email := NormalizeEmail(raw)
		if email == "" || IsFalsePositive(email) || !IsBusinessEmail(email) {
			continue
		}
		if _, dup := seenEmail[email]; dup {
			continue
		}
		seenEmail[email] = struct{}{}
		out.Emails = append(out.Emails, email)
	}

	seenPhone := map[string]struct{}{}
	for _, raw := range phoneToken.FindAllString(text, -1) {
		phone := NormalizePhone(raw, region)
		if phone == "" {
			continue
		}
		if _, dup := seenPhone[phone]; dup {
			continue
		}
		seenPhone[phone] = struct{}{}
		out.Phones = append(out.Phones, phone)
	}
	return out
}

// IsFalsePositive reports whether an address-like token is page noise.
func IsFalsePositive(email string) bool {
	if _, ok := placeholderDomains[EmailDomain(email)]; ok {
		return true
	}
	for _, marker := range noiseMarkers {
		if strings.Contains(email, marker) {
			return true
		}
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(email, suffix) {
			return true
		}
	}
	return false
}

// NormalizePhone keeps digits and "+", rejects numbers shorter than seven
// digits, and formats numbers valid for region (or carrying a country code)
// as E.164.
func NormalizePhone(raw, region string) string {
	cleaned := nonPhone.ReplaceAllString(raw, "")
	if strings.Count(cleaned, "+") > 1 || strings.LastIndexByte(cleaned, '+') > 0 {
		return ""
	}
	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < minPhoneDigits {
		return ""
	}
	if strings.HasPrefix(cleaned, "+") || region != "" {
		if num, err := phonenumbers.Parse(cleaned, strings.ToUpper(region)); err == nil && phonenumbers.IsValidNumber(num) {
			return phonenumbers.Format(num, phonenumbers.E164)
		}
	}
	return cleaned
}

// pageText flattens a document into decoded text, keeping attribute values so
// mailto: links and data attributes are searchable. Style blocks are dropped.
func pageText(r io.Reader) string {
	var b strings.Builder
	z := html.NewTokenizer(r)
	inStyle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if !inStyle {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "style" {
				inStyle = true
			}
			for hasAttr {
				var val []byte
				_, val, hasAttr = z.TagAttr()
				if len(val) > 0 {
					b.Write(val)
					b.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "style" {
				inStyle = false
			}
		}
	}
}

var countryRegions = map[string]string{
	"china": "CN", "india": "IN", "vietnam": "VN", "viet nam": "VN", "turkey": "TR", "türkiye": "TR",
	"germany": "DE", "italy": "IT", "spain": "ES", "france": "FR", "poland": "PL", "ukraine": "UA",
	"united kingdom": "GB", "uk": "GB", "united states": "US", "usa": "US", "mexico": "MX",
	"taiwan": "TW", "south korea": "KR", "korea": "KR", "japan": "JP", "thailand": "TH",
	"indonesia": "ID", "malaysia": "MY", "bangladesh": "BD", "pakistan": "PK", "brazil": "BR",
	"netherlands": "NL", "portugal": "PT", "czech republic": "CZ", "czechia": "CZ",
	"hong kong": "HK", "singapore": "SG", "canada": "CA", "egypt": "EG", "morocco": "MA",
}

// RegionForCountry maps a free-form country name or ISO code to a region
// code understood by the phone number parser. Unknown names yield "".
func RegionForCountry(country string) string {
	c := strings.ToLower(strings.TrimSpace(country))
	if region, ok := countryRegions[c]; ok {
		return region
	}
	if len(c) == 2 {
		return strings.ToUpper(c)
	}
	return ""
}
