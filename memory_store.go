package access

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It backs tests and single node
// deployments that keep principals elsewhere.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
	// log is non-nil inside RunInTx and records every write for replay.
	log []memoryOp
}

// memoryOp is a write against the store state. It checks before it mutates
// so a failed op leaves the state untouched.
type memoryOp func(*memoryState) error

type memoryState struct {
	principals  map[uuid.UUID]*Principal
	groups      map[uuid.UUID]map[string]struct{}
	roles       map[string]*RoleRecord
	permissions map[string][]string
}

var _ Store = (*MemoryStore)(nil)

var errDuplicateKey = errors.New("duplicate key")

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		principals:  map[uuid.UUID]*Principal{},
		groups:      map[uuid.UUID]map[string]struct{}{},
		roles:       map[string]*RoleRecord{},
		permissions: map[string][]string{},
	}
}

func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	for id, p := range s.principals {
		out.principals[id] = clonePrincipal(p)
	}
	for id, g := range s.groups {
		out.groups[id] = maps.Clone(g)
	}
	for name, r := range s.roles {
		cp := *r
		out.roles[name] = &cp
	}
	for name, p := range s.permissions {
		out.permissions[name] = slices.Clone(p)
	}
	return out
}

func clonePrincipal(p *Principal) *Principal {
	cp := *p
	cp.Metadata = maps.Clone(p.Metadata)
	return &cp
}

func (m *MemoryStore) Principals() PrincipalStore { return memoryPrincipals{m} }
func (m *MemoryStore) Roles() RoleStore           { return memoryRoles{m} }

// RunInTx runs fn against a copy of the data. On success the writes fn made
// are replayed on the live data under the write lock, so writes made outside
// the transaction meanwhile are kept. A replayed write that no longer applies
// fails the commit and nothing is applied.
func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.RLock()
	snapshot := m.state.clone()
	m.mu.RUnlock()

	tx := &MemoryStore{state: snapshot, log: []memoryOp{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.mu.RLock()
	ops := slices.Clone(tx.log)
	tx.mu.RUnlock()
	if len(ops) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	for _, op := range ops {
		if err := op(next); err != nil {
			return err
		}
	}
	m.state = next
	if m.log != nil {
		m.log = append(m.log, ops...)
	}
	return nil
}

// write applies op under the write lock and logs it inside a transaction.
func (m *MemoryStore) write(op memoryOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := op(m.state); err != nil {
		return err
	}
	if m.log != nil {
		m.log = append(m.log, op)
	}
	return nil
}

type memoryPrincipals struct{ m *MemoryStore }

func (s memoryPrincipals) GetPrincipal(_ context.Context, id uuid.UUID) (*Principal, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	p, ok := s.m.state.principals[id]
	if !ok {
		return nil, principalNotFound(id)
	}
	return clonePrincipal(p), nil
}

func (s memoryPrincipals) CreatePrincipal(_ context.Context, p *Principal) (*Principal, error) {
	preparePrincipalDefaults(p)
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = &now, &now
	record := clonePrincipal(p)

	err := s.m.write(func(st *memoryState) error {
		for _, existing := range st.principals {
			if existing.ID == record.ID || existing.Username == record.Username {
				return persistenceError(errDuplicateKey, "create_principal", map[string]any{"username": record.Username})
			}
		}
		st.principals[record.ID] = clonePrincipal(record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clonePrincipal(p), nil
}

func (s memoryPrincipals) SavePrincipal(_ context.Context, p *Principal) (*Principal, error) {
	now := time.Now()
	record := clonePrincipal(p)
	record.UpdatedAt = &now

	var saved *Principal
	err := s.m.write(func(st *memoryState) error {
		current, ok := st.principals[record.ID]
		if !ok {
			return principalNotFound(record.ID)
		}
		next := clonePrincipal(record)
		next.CreatedAt = current.CreatedAt
		st.principals[record.ID] = next
		saved = clonePrincipal(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s memoryPrincipals) ListPrincipals(_ context.Context, filter PrincipalFilter) ([]*Principal, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]*Principal, 0, len(s.m.state.principals))
	for id, p := range s.m.state.principals {
		if filter.ExcludeSuperusers && p.IsSuperuser {
			continue
		}
		if filter.Group != "" {
			if _, ok := s.m.state.groups[id][filter.Group]; !ok {
				continue
			}
		}
		out = append(out, clonePrincipal(p))
	}

	slices.SortFunc(out, func(a, b *Principal) int {
		switch {
		case a.Username < b.Username:
			return -1
		case a.Username > b.Username:
			return 1
		}
		return 0
	})
	return out, nil
}

func (s memoryPrincipals) Groups(_ context.Context, id uuid.UUID) ([]string, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.m.state.groups[id])), nil
}

func (s memoryPrincipals) AddGroups(_ context.Context, id uuid.UUID, groups ...string) error {
	groups = slices.Clone(groups)
	return s.m.write(func(st *memoryState) error {
		if _, ok := st.principals[id]; !ok {
			return principalNotFound(id)
		}
		if st.groups[id] == nil {
			st.groups[id] = map[string]struct{}{}
		}
		for _, g := range groups {
			if g != "" {
				st.groups[id][g] = struct{}{}
			}
		}
		return nil
	})
}

func (s memoryPrincipals) RemoveGroups(_ context.Context, id uuid.UUID, groups ...string) error {
	groups = slices.Clone(groups)
	return s.m.write(func(st *memoryState) error {
		for _, g := range groups {
			delete(st.groups[id], g)
		}
		return nil
	})
}

func (s memoryPrincipals) UpdateStaffFlag(_ context.Context, id uuid.UUID, isStaff bool) error {
	now := time.Now()
	return s.m.write(func(st *memoryState) error {
		p, ok := st.principals[id]
		if !ok {
			return principalNotFound(id)
		}
		p.IsStaff, p.UpdatedAt = isStaff, &now
		return nil
	})
}

type memoryRoles struct{ m *MemoryStore }

func (s memoryRoles) ListRoles(context.Context) ([]*RoleRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	out := make([]*RoleRecord, 0, len(s.m.state.roles))
	for _, name := range slices.Sorted(maps.Keys(s.m.state.roles)) {
		cp := *s.m.state.roles[name]
		out = append(out, &cp)
	}
	return out, nil
}

func (s memoryRoles) GetRole(_ context.Context, name string) (*RoleRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	r, ok := s.m.state.roles[name]
	if !ok {
		return nil, unknownRole(name)
	}
	cp := *r
	return &cp, nil
}

func (s memoryRoles) CreateRole(_ context.Context, role *RoleRecord) (*RoleRecord, error) {
	if err := ValidateRoleName(role.Name); err != nil {
		return nil, err
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	now := time.Now()
	role.CreatedAt, role.UpdatedAt = &now, &now
	record := *role

	err := s.m.write(func(st *memoryState) error {
		if _, ok := st.roles[record.Name]; ok {
			return newError(ErrDuplicateRole, map[string]any{"role": record.Name})
		}
		cp := record
		st.roles[record.Name] = &cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s memoryRoles) UpdateRole(_ context.Context, role *RoleRecord) (*RoleRecord, error) {
	now := time.Now()
	input := *role

	var updated RoleRecord
	err := s.m.write(func(st *memoryState) error {
		current, ok := st.roles[input.Name]
		if !ok {
			return unknownRole(input.Name)
		}
		current.Label = input.Label
		current.IsStaff = input.IsStaff
		current.IsDefault = input.IsDefault
		current.Description = input.Description
		current.UpdatedAt = &now
		updated = *current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s memoryRoles) DeleteRole(_ context.Context, name string) error {
	return s.m.write(func(st *memoryState) error {
		if _, ok := st.roles[name]; !ok {
			return unknownRole(name)
		}
		delete(st.roles, name)
		delete(st.permissions, name)
		return nil
	})
}

func (s memoryRoles) DefaultRoles(context.Context) ([]*RoleRecord, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	var out []*RoleRecord
	for _, name := range slices.Sorted(maps.Keys(s.m.state.roles)) {
		if r := s.m.state.roles[name]; r.IsDefault {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s memoryRoles) RolePermissions(_ context.Context, role string) ([]string, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	return slices.Clone(s.m.state.permissions[role]), nil
}

func (s memoryRoles) SetRolePermissions(_ context.Context, role string, permissions []string) error {
	perms := slices.Compact(slices.Sorted(slices.Values(permissions)))
	return s.m.write(func(st *memoryState) error {
		st.permissions[role] = slices.Clone(perms)
		return nil
	})
}
