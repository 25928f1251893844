package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// SearchRepository persists runs, their suppliers and run logs.
type SearchRepository interface {
	CreateRun(ctx context.Context, run *entity.SearchRun) error
	FinalizeRun(ctx context.Context, run *entity.SearchRun) error
	GetRun(ctx context.Context, id string) (*entity.SearchRun, error)
	ListRuns(ctx context.Context, limit int) ([]entity.SearchRun, error)
	SaveSuppliers(ctx context.Context, suppliers []*entity.Supplier) error
	GetSupplier(ctx context.Context, id string) (*entity.Supplier, error)
	ListSuppliers(ctx context.Context, searchID string) ([]entity.Supplier, error)
	FindSupplierByEmail(ctx context.Context, email string) (*entity.Supplier, error)
	PatchSupplier(ctx context.Context, id string, patch entity.SupplierPatch) error
	AppendLog(ctx context.Context, entry entity.SearchLog) error
	ListLogs(ctx context.Context, searchID string) ([]entity.SearchLog, error)
}

const (
	runColumns      = `id, query, status, metrics, failure_reason, failure_code, diagnostics, started_at, completed_at`
	supplierColumns = `id, search_id, thread_id, company_name, email, phone, country, city, website, details,
        status, priority, emails_sent, emails_received, last_contact, last_response_at, notes, history, metadata,
        created_at, updated_at`
	defaultRunListLimit = 50
)

// supplierDetails holds the descriptive fields stored in suppliers.details.
type supplierDetails struct {
	Capabilities         string `json:"manufacturing_capabilities,omitempty"`
	ProductionCapacity   string `json:"production_capacity,omitempty"`
	Certifications       string `json:"certifications,omitempty"`
	YearsInBusiness      string `json:"years_in_business,omitempty"`
	PriceRange           string `json:"estimated_price_range,omitempty"`
	MinimumOrderQuantity string `json:"minimum_order_quantity,omitempty"`
}

// PGXSearchRepository implements SearchRepository using pgx.
type PGXSearchRepository struct {
	pool pgxPool
}

var _ SearchRepository = (*PGXSearchRepository)(nil)

// NewPGXSearchRepository wires a pgx backed repository.
func NewPGXSearchRepository(pool pgxPool) *PGXSearchRepository {
	return &PGXSearchRepository{pool: pool}
}

// CreateRun inserts a new run row.
func (r *PGXSearchRepository) CreateRun(ctx context.Context, run *entity.SearchRun) error {
	if run == nil {
		return fmt.Errorf("search run payload is nil")
	}
	query, err := json.Marshal(run.Query)
	if err != nil {
		return fmt.Errorf("encode search query: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encode run metrics: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
        INSERT INTO searches (id, query, status, metrics, started_at)
        VALUES ($1, $2::jsonb, $3, $4::jsonb, $5)
    `, run.ID, string(query), string(run.Status), string(metrics), run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert search run: %w", err)
	}
	return nil
}

// FinalizeRun moves a processing run to its terminal status. A run that is
// already terminal is left untouched and ErrRunFinalized is returned.
func (r *PGXSearchRepository) FinalizeRun(ctx context.Context, run *entity.SearchRun) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("encode run metrics: %w", err)
	}
	var diagnostics any
	if len(run.Diagnostics) > 0 {
		diagnostics = string(run.Diagnostics)
	}
	cmd, err := r.pool.Exec(ctx, `
        UPDATE searches SET
            status = $2,
            metrics = $3::jsonb,
            failure_reason = $4,
            failure_code = $5,
            diagnostics = $6::jsonb,
            completed_at = $7
        WHERE id = $1 AND status = 'processing'
    `, run.ID, string(run.Status), string(metrics), run.FailureReason, run.FailureCode, diagnostics, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("finalize search run: %w", err)
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var status string
	if err := r.pool.QueryRow(ctx, `SELECT status FROM searches WHERE id = $1`, run.ID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.ErrNotFound
		}
		return fmt.Errorf("query search run status: %w", err)
	}
	return entity.ErrRunFinalized
}

func scanRun(row pgx.Row) (*entity.SearchRun, error) {
	var (
		run         entity.SearchRun
		status      string
		query       []byte
		metrics     []byte
		diagnostics []byte
	)
	if err := row.Scan(&run.ID, &query, &status, &metrics, &run.FailureReason, &run.FailureCode, &diagnostics, &run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	run.Status = entity.RunStatus(status)
	if err := json.Unmarshal(query, &run.Query); err != nil {
		return nil, fmt.Errorf("decode search query: %w", err)
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
			return nil, fmt.Errorf("decode run metrics: %w", err)
		}
	}
	if len(diagnostics) > 0 {
		run.Diagnostics = json.RawMessage(diagnostics)
	}
	return &run, nil
}

// GetRun fetches one run.
func (r *PGXSearchRepository) GetRun(ctx context.Context, id string) (*entity.SearchRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM searches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("query search run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *PGXSearchRepository) ListRuns(ctx context.Context, limit int) ([]entity.SearchRun, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultRunListLimit
	}
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM searches ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list search runs: %w", err)
	}
	defer rows.Close()

	var runs []entity.SearchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search run row: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search runs: %w", err)
	}
	return runs, nil
}

const upsertSupplierSQL = `
        INSERT INTO suppliers (
            id, search_id, thread_id, company_name, email, phone, country, city, website, details,
            status, priority, emails_sent, emails_received, notes, history, metadata, created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb,
            $11, $12, $13, $14, $15, $16::jsonb, $17::jsonb, $18, $18
        )
        ON CONFLICT (id) DO UPDATE SET
            thread_id = EXCLUDED.thread_id,
            company_name = EXCLUDED.company_name,
            email = EXCLUDED.email,
            phone = EXCLUDED.phone,
            country = EXCLUDED.country,
            city = EXCLUDED.city,
            website = EXCLUDED.website,
            details = EXCLUDED.details,
            priority = EXCLUDED.priority,
            metadata = EXCLUDED.metadata,
            updated_at = NOW();
    `

// SaveSuppliers upserts suppliers in one transaction. Status and history of
// an existing row are kept.
func (r *PGXSearchRepository) SaveSuppliers(ctx context.Context, suppliers []*entity.Supplier) error {
	if len(suppliers) == 0 {
		return nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("start save suppliers tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range suppliers {
		details, err := json.Marshal(supplierDetails{
			Capabilities:         s.Capabilities,
			ProductionCapacity:   s.ProductionCapacity,
			Certifications:       s.Certifications,
			YearsInBusiness:      s.YearsInBusiness,
			PriceRange:           s.PriceRange,
			MinimumOrderQuantity: s.MinimumOrderQuantity,
		})
		if err != nil {
			return fmt.Errorf("encode supplier details: %w", err)
		}
		history := s.History
		if history == nil {
			history = []entity.ConversationEvent{}
		}
		historyJSON, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("encode supplier history: %w", err)
		}
		metadata, err := json.Marshal(s.Metadata)
		if err != nil {
			return fmt.Errorf("encode supplier metadata: %w", err)
		}
		created := s.CreatedAt
		if created.IsZero() {
			created = s.UpdatedAt
		}
		if _, err := tx.Exec(ctx, upsertSupplierSQL,
			s.ID, s.SearchID, s.ThreadID, s.CompanyName, s.Email, s.Phone, s.Country, s.City, s.Website, string(details),
			string(s.Status), string(s.Priority), s.EmailsSent, s.EmailsReceived, s.Notes, string(historyJSON), string(metadata),
			created,
		); err != nil {
			return fmt.Errorf("save supplier %q: %w", s.CompanyName, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save suppliers tx: %w", err)
	}
	return nil
}

func scanSupplier(row pgx.Row) (*entity.Supplier, error) {
	var (
		s                          entity.Supplier
		status, priority           string
		details, history, metadata []byte
	)
	if err := row.Scan(
		&s.ID, &s.SearchID, &s.ThreadID, &s.CompanyName, &s.Email, &s.Phone, &s.Country, &s.City, &s.Website, &details,
		&status, &priority, &s.EmailsSent, &s.EmailsReceived, &s.LastContact, &s.LastResponseAt, &s.Notes, &history, &metadata,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = entity.SupplierStatus(status)
	s.Priority = entity.Priority(priority)

	var d supplierDetails
	if len(details) > 0 {
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("decode supplier details: %w", err)
		}
	}
	s.Capabilities = d.Capabilities
	s.ProductionCapacity = d.ProductionCapacity
	s.Certifications = d.Certifications
	s.YearsInBusiness = d.YearsInBusiness
	s.PriceRange = d.PriceRange
	s.MinimumOrderQuantity = d.MinimumOrderQuantity

	s.History = []entity.ConversationEvent{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.History); err != nil {
			return nil, fmt.Errorf("decode supplier history: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode supplier metadata: %w", err)
		}
	}
	return &s, nil
}

// GetSupplier fetches one supplier.
func (r *PGXSearchRepository) GetSupplier(ctx context.Context, id string) (*entity.Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("query supplier: %w", err)
	}
	return s, nil
}

// ListSuppliers returns the suppliers of a run in thread order.
func (r *PGXSearchRepository) ListSuppliers(ctx context.Context, searchID string) ([]entity.Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE search_id = $1 ORDER BY thread_id`, searchID)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []entity.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supplier row: %w", err)
		}
		suppliers = append(suppliers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppliers: %w", err)
	}
	return suppliers, nil
}

// FindSupplierByEmail returns the most recently created supplier with email.
func (r *PGXSearchRepository) FindSupplierByEmail(ctx context.Context, email string) (*entity.Supplier, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s, err := scanSupplier(r.pool.QueryRow(ctx,
		`SELECT `+supplierColumns+` FROM suppliers WHERE LOWER(email) = $1 ORDER BY created_at DESC LIMIT 1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("query supplier by email: %w", err)
	}
	return s, nil
}

// PatchSupplier applies patch under a row lock so concurrent history appends
// are serialized.
func (r *PGXSearchRepository) PatchSupplier(ctx context.Context, id string, patch entity.SupplierPatch) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("start patch supplier tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSupplier(tx.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.ErrNotFound
		}
		return fmt.Errorf("lock supplier: %w", err)
	}
	s.Apply(patch)

	history, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("encode supplier history: %w", err)
	}
	if _, err := tx.Exec(ctx, `
        UPDATE suppliers SET
            status = $2,
            notes = $3,
            history = $4::jsonb,
            emails_sent = $5,
            emails_received = $6,
            last_contact = $7,
            last_response_at = $8,
            updated_at = $9
        WHERE id = $1
    `, s.ID, string(s.Status), s.Notes, string(history), s.EmailsSent, s.EmailsReceived, s.LastContact, s.LastResponseAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("update supplier: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit patch supplier tx: %w", err)
	}
	return nil
}
