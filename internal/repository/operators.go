package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/octobees/supplier-outreach/internal/entity"
)

var (
	// ErrOperatorNotFound is returned when no operator matches the lookup criteria.
	ErrOperatorNotFound = errors.New("operator not found")
	ErrEmailDuplicate   = errors.New("email already exists")
)

const operatorColumns = `id, email, password_hash, role, created_at, updated_at`

// OperatorsRepository declares persistence operations for API operators.
type OperatorsRepository interface {
	FindByEmail(ctx context.Context, email string) (*entity.Operator, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Operator, error)
	Create(ctx context.Context, email, passwordHash, role string) (*entity.Operator, error)
	List(ctx context.Context) ([]entity.Operator, error)
	Update(ctx context.Context, id uuid.UUID, email, passwordHash, role *string) (*entity.Operator, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PGXOperatorsRepository implements OperatorsRepository with pgx.
type PGXOperatorsRepository struct {
	pool pgxPool
}

var _ OperatorsRepository = (*PGXOperatorsRepository)(nil)

// NewPGXOperatorsRepository instantiates an operators repository.
func NewPGXOperatorsRepository(pool pgxPool) *PGXOperatorsRepository {
	return &PGXOperatorsRepository{pool: pool}
}

func scanOperator(row pgx.Row) (*entity.Operator, error) {
	var op entity.Operator
	if err := row.Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Role, &op.CreatedAt, &op.UpdatedAt); err != nil {
		return nil, err
	}
	return &op, nil
}

func isEmailConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName+pgErr.Message, "operators_email_key")
}

// FindByEmail fetches an operator by email if present.
func (r *PGXOperatorsRepository) FindByEmail(ctx context.Context, email string) (*entity.Operator, error) {
	op, err := scanOperator(r.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operators WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("query operator by email: %w", err)
	}
	return op, nil
}

// FindByID retrieves an operator by identifier.
func (r *PGXOperatorsRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Operator, error) {
	op, err := scanOperator(r.pool.QueryRow(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("query operator by id: %w", err)
	}
	return op, nil
}

// Create inserts a new operator row.
func (r *PGXOperatorsRepository) Create(ctx context.Context, email, passwordHash, role string) (*entity.Operator, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO operators (email, password_hash, role)
        VALUES ($1, $2, $3)
        RETURNING `+operatorColumns, email, passwordHash, role)

	op, err := scanOperator(row)
	if err != nil {
		if isEmailConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmailDuplicate, err)
		}
		return nil, fmt.Errorf("insert operator: %w", err)
	}
	return op, nil
}

// List returns all operators, newest first.
func (r *PGXOperatorsRepository) List(ctx context.Context) ([]entity.Operator, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var operators []entity.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operator row: %w", err)
		}
		operators = append(operators, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operators: %w", err)
	}
	return operators, nil
}

// Update patches operator attributes.
func (r *PGXOperatorsRepository) Update(ctx context.Context, id uuid.UUID, email, passwordHash, role *string) (*entity.Operator, error) {
	setClauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	idx := 1

	for _, col := range []struct {
		name  string
		value *string
	}{{"email", email}, {"password_hash", passwordHash}, {"role", role}} {
		if col.value == nil {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col.name, idx))
		args = append(args, *col.value)
		idx++
	}
	if len(setClauses) == 0 {
		return r.FindByID(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE operators SET %s WHERE id = $%d RETURNING %s`, strings.Join(setClauses, ", "), idx, operatorColumns)

	op, err := scanOperator(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		if isEmailConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrEmailDuplicate, err)
		}
		return nil, fmt.Errorf("update operator: %w", err)
	}
	return op, nil
}

// Delete removes an operator by id.
func (r *PGXOperatorsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM operators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete operator: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrOperatorNotFound
	}
	return nil
}
