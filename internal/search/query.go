package search

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/generation"
)

const (
	minDescriptionLength = 10
	maxDescriptionLength = 2000
	maxFieldLength       = 500
	maxSuppliersCap      = 50
	runIDSuffixLength    = 6
	base36               = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// ErrInvalidQuery is wrapped by ValidationError.
var ErrInvalidQuery = errors.New("invalid search query")

// FieldError is one rejected query field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a query.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid search query: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidQuery }

// NormalizeQuery trims q, applies the supplier bounds defaults and checks
// every field.
func NormalizeQuery(q entity.SearchQuery, defaultMin, defaultMax int) (entity.SearchQuery, error) {
	q.ProductDescription = strings.TrimSpace(q.ProductDescription)
	q.Quantity = strings.TrimSpace(q.Quantity)
	q.TargetPrice = strings.TrimSpace(q.TargetPrice)
	q.Requirements = strings.TrimSpace(q.Requirements)
	q.Region = strings.ToLower(strings.TrimSpace(q.Region))
	if q.Region == "" {
		q.Region = "china"
	}
	if q.MinSuppliers == 0 {
		q.MinSuppliers = defaultMin
	}
	if q.MaxSuppliers == 0 {
		q.MaxSuppliers = defaultMax
	}

	var fields []FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch n := len([]rune(q.ProductDescription)); {
	case n < minDescriptionLength:
		add("product_description", "must be at least %d characters", minDescriptionLength)
	case n > maxDescriptionLength:
		add("product_description", "must be at most %d characters", maxDescriptionLength)
	}
	for field, v := range map[string]string{"quantity": q.Quantity, "target_price": q.TargetPrice, "requirements": q.Requirements} {
		if len([]rune(v)) > maxFieldLength {
			add(field, "must be at most %d characters", maxFieldLength)
		}
	}
	if !validRegion(q.Region) {
		add("region", "must be one of %s", strings.Join(generation.Regions(), ", "))
	}
	if q.MinSuppliers < 1 {
		add("min_suppliers", "must be at least 1")
	}
	if q.MaxSuppliers < 1 || q.MaxSuppliers > maxSuppliersCap {
		add("max_suppliers", "must be between 1 and %d", maxSuppliersCap)
	}
	if q.MinSuppliers >= 1 && q.MaxSuppliers >= 1 && q.MinSuppliers > q.MaxSuppliers {
		add("min_suppliers", "must not exceed max_suppliers")
	}

	if len(fields) > 0 {
		sortFields(fields)
		return q, &ValidationError{Fields: fields}
	}
	return q, nil
}

func validRegion(region string) bool {
	for _, r := range generation.Regions() {
		if r == region {
			return true
		}
	}
	return false
}

// Map iteration order is random; keep messages stable.
func sortFields(fields []FieldError) {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
}

// NewRunID returns SEARCH_<unixMillis>_<6 base36 chars>.
func NewRunID(at time.Time) string {
	var b strings.Builder
	b.Grow(runIDSuffixLength)
	for i := 0; i < runIDSuffixLength; i++ {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return "SEARCH_" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + b.String()
}

// ThreadID returns the reply thread id of the n-th (1-based) supplier of a run.
func ThreadID(runID string, n int) string {
	return fmt.Sprintf("thread_%s_%03d", runID, n)
}
