package entity

// VerificationStatus is the judgement produced by contact verification.
type VerificationStatus string

const (
	VerificationMatched       VerificationStatus = "matched"
	VerificationDomainMatched VerificationStatus = "domain-matched"
	VerificationExtracted     VerificationStatus = "extracted"
	VerificationFailed        VerificationStatus = "failed"
)

// Verified reports whether the supplier may be contacted.
func (s VerificationStatus) Verified() bool {
	return s == VerificationMatched || s == VerificationDomainMatched || s == VerificationExtracted
}

// VerificationResult is folded into supplier metadata after filtering.
type VerificationResult struct {
	Status   VerificationStatus `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	Evidence Evidence           `json:"evidence"`
}

// Evidence records everything observed while verifying a contact.
type Evidence struct {
	CandidateEmail string         `json:"candidate_email,omitempty"`
	ResolvedEmail  string         `json:"resolved_email,omitempty"`
	SiteDomain     string         `json:"site_domain,omitempty"`
	Emails         []SourcedValue `json:"emails"`
	Phones         []SourcedValue `json:"phones"`
	MatchedSource  string         `json:"matched_source,omitempty"`
	Pages          []PageAttempt  `json:"pages"`
}

// SourcedValue is a discovered token and the first page it was seen on.
type SourcedValue struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// PageAttempt describes one fetched page.
type PageAttempt struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url,omitempty"`
	Status   int    `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}
