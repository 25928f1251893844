package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fatal error codes.
const (
	CodeInvalidShape      = "invalid_shape"
	CodeNoValidCandidates = "no_valid_candidates"
)

// maxReportedRejects bounds the reasons carried by a no_valid_candidates error.
const maxReportedRejects = 5

// FatalError aborts a run. Raw holds the offending payload for diagnostics.
type FatalError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"raw,omitempty"`
	Rejects []Reject        `json:"rejects,omitempty"`
}

func (e *FatalError) Error() string {
	if len(e.Rejects) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, 0, len(e.Rejects))
	for _, r := range e.Rejects {
		name := r.CompanyName
		if name == "" {
			name = fmt.Sprintf("#%d", r.Index+1)
		}
		parts = append(parts, name+" ("+strings.Join(r.Reasons, ", ")+")")
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(parts, "; "))
}

// Stage names used in Reject.
const (
	StageSchema       = "schema"
	StageReachability = "reachability"
	StageVerification = "verification"
)

// Reject records why one candidate was dropped. Index is the position in the
// input of the stage that dropped it.
type Reject struct {
	Stage       string   `json:"stage"`
	Index       int      `json:"index"`
	CompanyName string   `json:"company_name,omitempty"`
	Website     string   `json:"website,omitempty"`
	Reasons     []string `json:"reasons"`
}
