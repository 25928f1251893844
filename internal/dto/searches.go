package dto

import "github.com/octobees/supplier-outreach/internal/entity"

// CreateSearchRequest starts a supplier search run.
type CreateSearchRequest struct {
	ProductDescription string `json:"product_description"`
	Quantity           string `json:"quantity"`
	TargetPrice        string `json:"target_price"`
	Region             string `json:"region"`
	Requirements       string `json:"requirements"`
	MinSuppliers       int    `json:"min_suppliers"`
	MaxSuppliers       int    `json:"max_suppliers"`
}

// Query converts the request into a search query.
func (r CreateSearchRequest) Query() entity.SearchQuery {
	return entity.SearchQuery{
		ProductDescription: r.ProductDescription,
		Quantity:           r.Quantity,
		TargetPrice:        r.TargetPrice,
		Region:             r.Region,
		Requirements:       r.Requirements,
		MinSuppliers:       r.MinSuppliers,
		MaxSuppliers:       r.MaxSuppliers,
	}
}

// SearchAccepted is returned when a run has been scheduled.
type SearchAccepted struct {
	SearchID  string           `json:"search_id"`
	Status    entity.RunStatus `json:"status"`
	StatusURL string           `json:"status_url"`
}

// SearchDetail is a run with its suppliers and log.
type SearchDetail struct {
	entity.SearchRun
	Suppliers []entity.Supplier  `json:"suppliers"`
	Logs      []entity.SearchLog `json:"logs,omitempty"`
}
