package pipeline

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/octobees/supplier-outreach/internal/contact"
	"github.com/octobees/supplier-outreach/internal/entity"
)

// entityToken matches a legal-form or business word in a company name.
var entityToken = regexp.MustCompile(`(?i)\b(ltd|inc|corp|corporation|co|company|manufacturing|manufacturer|factory|group|industries|industrial|limited|llc|gmbh)\b`)

// Schema rejection reasons.
const (
	ReasonMissingCompany = "missing company name"
	ReasonNoEntityToken  = "company name lacks a business entity token"
	ReasonMissingEmail   = "missing email"
	ReasonInvalidEmail   = "invalid email"
	ReasonFreeMail       = "email uses a consumer free-mail domain"
	ReasonMissingCountry = "missing country"
	ReasonInvalidWebsite = "website is neither an absolute URL nor a domain"
)

// ValidateCandidate returns the per-field reasons a record is unusable, or
// nil when it passes.
func ValidateCandidate(c entity.CandidateRecord) []string {
	var reasons []string

	switch name := strings.TrimSpace(c.CompanyName); {
	case name == "":
		reasons = append(reasons, ReasonMissingCompany)
	case !entityToken.MatchString(name):
		reasons = append(reasons, ReasonNoEntityToken)
	}

	switch email := strings.TrimSpace(c.Email); {
	case email == "":
		reasons = append(reasons, ReasonMissingEmail)
	case contact.NormalizeEmail(email) == "":
		reasons = append(reasons, ReasonInvalidEmail)
	case !contact.IsBusinessEmail(email):
		reasons = append(reasons, ReasonFreeMail)
	}

	if strings.TrimSpace(c.Country) == "" {
		reasons = append(reasons, ReasonMissingCountry)
	}
	if w := strings.TrimSpace(c.Website); w != "" && !plausibleWebsite(w) {
		reasons = append(reasons, ReasonInvalidWebsite)
	}
	return reasons
}

// ValidateAll keeps records that pass ValidateCandidate, in order.
func ValidateAll(records []entity.CandidateRecord) (valid []entity.CandidateRecord, rejects []Reject) {
	for i, rec := range records {
		if reasons := ValidateCandidate(rec); len(reasons) > 0 {
			rejects = append(rejects, Reject{
				Stage:       StageSchema,
				Index:       i,
				CompanyName: rec.CompanyName,
				Website:     rec.Website,
				Reasons:     reasons,
			})
			continue
		}
		valid = append(valid, rec)
	}
	return valid, rejects
}

func plausibleWebsite(w string) bool {
	if u, err := url.Parse(w); err == nil && u.IsAbs() && u.Host != "" {
		return true
	}
	return strings.Contains(w, ".") && !strings.ContainsAny(w, " \t")
}
