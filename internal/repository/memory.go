package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octobees/supplier-outreach/internal/entity"
)

// MemoryStore keeps runs, suppliers, logs and operators in process memory.
// It backs local runs without DATABASE_URL and the package tests.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]*entity.SearchRun
	suppliers map[string]*entity.Supplier
	order     []string
	logs      map[string][]entity.SearchLog
	logSeq    int64
	operators map[uuid.UUID]*entity.Operator
}

var (
	_ SearchRepository    = (*MemoryStore)(nil)
	_ OperatorsRepository = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]*entity.SearchRun),
		suppliers: make(map[string]*entity.Supplier),
		logs:      make(map[string][]entity.SearchLog),
		operators: make(map[uuid.UUID]*entity.Operator),
	}
}

func (m *MemoryStore) CreateRun(ctx context.Context, run *entity.SearchRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("search run payload is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("search run %s already exists", run.ID)
	}
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemoryStore) FinalizeRun(ctx context.Context, run *entity.SearchRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[run.ID]
	if !ok {
		return entity.ErrNotFound
	}
	if cur.Status.Terminal() {
		return entity.ErrRunFinalized
	}
	cur.Status = run.Status
	cur.Metrics = run.Metrics
	cur.FailureReason = run.FailureReason
	cur.FailureCode = run.FailureCode
	cur.Diagnostics = run.Diagnostics
	cur.CompletedAt = run.CompletedAt
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id string) (*entity.SearchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, limit int) ([]entity.SearchRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.SearchRun, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit <= 0 || limit > 500 {
		limit = defaultRunListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveSuppliers(ctx context.Context, suppliers []*entity.Supplier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range suppliers {
		if _, ok := m.suppliers[s.ID]; !ok {
			m.order = append(m.order, s.ID)
		}
		m.suppliers[s.ID] = cloneSupplier(s)
	}
	return nil
}

func (m *MemoryStore) GetSupplier(ctx context.Context, id string) (*entity.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.suppliers[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return cloneSupplier(s), nil
}

func (m *MemoryStore) ListSuppliers(ctx context.Context, searchID string) ([]entity.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entity.Supplier
	for _, id := range m.order {
		if s := m.suppliers[id]; s.SearchID == searchID {
			out = append(out, *cloneSupplier(s))
		}
	}
	return out, nil
}

// FindSupplierByEmail returns the most recently created supplier with email.
func (m *MemoryStore) FindSupplierByEmail(ctx context.Context, email string) (*entity.Supplier, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		s := m.suppliers[m.order[i]]
		if strings.EqualFold(s.Email, email) {
			return cloneSupplier(s), nil
		}
	}
	return nil, entity.ErrNotFound
}

func (m *MemoryStore) PatchSupplier(ctx context.Context, id string, patch entity.SupplierPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suppliers[id]
	if !ok {
		return entity.ErrNotFound
	}
	s.Apply(patch)
	return nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, entry entity.SearchLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logSeq++
	entry.ID = m.logSeq
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.logs[entry.SearchID] = append(m.logs[entry.SearchID], entry)
	return nil
}

func (m *MemoryStore) ListLogs(ctx context.Context, searchID string) ([]entity.SearchLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]entity.SearchLog(nil), m.logs[searchID]...), nil
}

func (m *MemoryStore) FindByEmail(ctx context.Context, email string) (*entity.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, op := range m.operators {
		if strings.EqualFold(op.Email, email) {
			cp := *op
			return &cp, nil
		}
	}
	return nil, ErrOperatorNotFound
}

func (m *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*entity.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	op, ok := m.operators[id]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, email, passwordHash, role string) (*entity.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.operators {
		if strings.EqualFold(op.Email, email) {
			return nil, ErrEmailDuplicate
		}
	}
	now := time.Now()
	op := &entity.Operator{ID: uuid.New(), Email: email, PasswordHash: passwordHash, Role: role, CreatedAt: now, UpdatedAt: now}
	m.operators[op.ID] = op
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]entity.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.Operator, 0, len(m.operators))
	for _, op := range m.operators {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Update(ctx context.Context, id uuid.UUID, email, passwordHash, role *string) (*entity.Operator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.operators[id]
	if !ok {
		return nil, ErrOperatorNotFound
	}
	if email != nil {
		for oid, other := range m.operators {
			if oid != id && strings.EqualFold(other.Email, *email) {
				return nil, ErrEmailDuplicate
			}
		}
		op.Email = *email
	}
	if passwordHash != nil {
		op.PasswordHash = *passwordHash
	}
	if role != nil {
		op.Role = *role
	}
	op.UpdatedAt = time.Now()
	cp := *op
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.operators[id]; !ok {
		return ErrOperatorNotFound
	}
	delete(m.operators, id)
	return nil
}

func cloneSupplier(s *entity.Supplier) *entity.Supplier {
	cp := *s
	cp.History = append([]entity.ConversationEvent(nil), s.History...)
	if cp.History == nil {
		cp.History = []entity.ConversationEvent{}
	}
	return &cp
}
