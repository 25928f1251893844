package dto

// CreateOperatorRequest is used by administrators to create operators.
type CreateOperatorRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateOperatorRequest captures partial updates.
type UpdateOperatorRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// OperatorResponse is operator data returned to clients.
type OperatorResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
