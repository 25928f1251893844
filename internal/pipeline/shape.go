package pipeline

import (
	"bytes"
	"encoding/json"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// ShapeKeys are the object keys under which a candidate list is accepted.
var ShapeKeys = []string{"suppliers", "data", "results", "items", "candidates"}

// ExtractShape turns a generation response into candidate records. It accepts
// a bare JSON array or an object holding an array under one of ShapeKeys.
// Elements that are not objects are kept as empty records so the schema
// stage can report them.
func ExtractShape(raw json.RawMessage) ([]entity.CandidateRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &FatalError{Code: CodeInvalidShape, Message: "empty generation response"}
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, &FatalError{Code: CodeInvalidShape, Message: "malformed candidate array", Raw: raw}
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, &FatalError{Code: CodeInvalidShape, Message: "malformed candidate object", Raw: raw}
		}
		found := false
		for _, key := range ShapeKeys {
			value, ok := obj[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(value, &items); err == nil && items != nil {
				found = true
				break
			}
		}
		if !found {
			return nil, &FatalError{Code: CodeInvalidShape, Message: "no candidate list in response object", Raw: raw}
		}
	default:
		return nil, &FatalError{Code: CodeInvalidShape, Message: "response is neither a list nor an object", Raw: raw}
	}

	records := make([]entity.CandidateRecord, 0, len(items))
	for _, item := range items {
		var rec entity.CandidateRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			rec = entity.CandidateRecord{Raw: append(json.RawMessage(nil), item...)}
		}
		records = append(records, rec)
	}
	return records, nil
}
