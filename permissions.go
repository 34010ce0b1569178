package access

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var (
	permissionDomainPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	permissionActionPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)
)

// PermissionRef is a coarse "domain.action" permission identifier.
type PermissionRef struct {
	Domain string `json:"domain"`
	Action string `json:"action"`
}

func (p PermissionRef) String() string {
	return p.Domain + "." + p.Action
}

// ParsePermission splits id on its first dot. Both parts must be present.
func ParsePermission(id string) (PermissionRef, error) {
	domain, action, ok := strings.Cut(strings.TrimSpace(id), ".")
	if !ok || !permissionDomainPattern.MatchString(domain) || !permissionActionPattern.MatchString(action) {
		return PermissionRef{}, newError(ErrInvalidPermissionFormat, map[string]any{
			"permission": id,
			"expected":   "domain.action",
		})
	}
	return PermissionRef{Domain: domain, Action: action}, nil
}

// Reject is a permission id skipped by a bulk operation.
type Reject struct {
	Role       string `json:"role,omitempty"`
	Permission string `json:"permission"`
	Err        error  `json:"-"`
}

// ImportReport summarizes a bulk permission import.
type ImportReport struct {
	Roles    int      `json:"roles"`
	Assigned int      `json:"assigned"`
	Rejects  []Reject `json:"rejects,omitempty"`
}

// HasRejects reports whether anything was skipped.
func (r ImportReport) HasRejects() bool { return len(r.Rejects) > 0 }

// RoleLookup reports whether a role exists. RoleRegistry satisfies it.
type RoleLookup interface {
	IsValidRole(name string) bool
}

// PermissionRegistry maps roles to permission identifiers.
type PermissionRegistry struct {
	mu     sync.RWMutex
	perms  map[string]map[PermissionRef]struct{}
	roles  RoleLookup
	logger Logger
}

// PermissionOption customizes a PermissionRegistry.
type PermissionOption func(*PermissionRegistry)

// WithPermissionRoles makes writes fail for roles the lookup does not know.
func WithPermissionRoles(roles RoleLookup) PermissionOption {
	return func(r *PermissionRegistry) {
		r.roles = roles
	}
}

// WithPermissionLogger sets the logger.
func WithPermissionLogger(logger Logger) PermissionOption {
	return func(r *PermissionRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewPermissionRegistry(opts ...PermissionOption) *PermissionRegistry {
	_, logger := ResolveLogger("access.permissions", nil, nil)
	r := &PermissionRegistry{
		perms:  map[string]map[PermissionRef]struct{}{},
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *PermissionRegistry) checkRole(role string) error {
	if r.roles != nil && !r.roles.IsValidRole(role) {
		return unknownRole(role)
	}
	return nil
}

// SetPermissions replaces the permissions of role. Malformed ids are skipped
// and returned as rejects, the valid ones are still applied.
func (r *PermissionRegistry) SetPermissions(role string, ids []string) ([]Reject, error) {
	if err := r.checkRole(role); err != nil {
		return nil, err
	}

	set, rejects := parsePermissionSet(role, ids)

	r.mu.Lock()
	r.perms[role] = set
	r.mu.Unlock()

	if len(rejects) > 0 {
		r.logger.Warn("permissions skipped", "role", role, "rejected", len(rejects))
	}
	return rejects, nil
}

func parsePermissionSet(role string, ids []string) (map[PermissionRef]struct{}, []Reject) {
	set := make(map[PermissionRef]struct{}, len(ids))
	var rejects []Reject
	for _, id := range ids {
		ref, err := ParsePermission(id)
		if err != nil {
			rejects = append(rejects, Reject{Role: role, Permission: id, Err: err})
			continue
		}
		set[ref] = struct{}{}
	}
	return set, rejects
}

// AddPermission grants a single permission.
func (r *PermissionRegistry) AddPermission(role, id string) error {
	if err := r.checkRole(role); err != nil {
		return err
	}
	ref, err := ParsePermission(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.perms[role] == nil {
		r.perms[role] = map[PermissionRef]struct{}{}
	}
	r.perms[role][ref] = struct{}{}
	return nil
}

// RemovePermission revokes a single permission. Revoking a permission the
// role does not hold is not an error.
func (r *PermissionRegistry) RemovePermission(role, id string) error {
	if err := r.checkRole(role); err != nil {
		return err
	}
	ref, err := ParsePermission(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.perms[role], ref)
	return nil
}

// HasPermission reports whether role holds id. Malformed ids and unknown
// roles yield false.
func (r *PermissionRegistry) HasPermission(role, id string) bool {
	ref, err := ParsePermission(id)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.perms[role][ref]
	return ok
}

// Permissions returns the sorted permission ids of role.
func (r *PermissionRegistry) Permissions(role string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.perms[role]))
	for ref := range r.perms[role] {
		out = append(out, ref.String())
	}
	slices.Sort(out)
	return out
}

// Roles returns the sorted names of roles that have a permission entry.
func (r *PermissionRegistry) Roles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.perms))
}

// Import replaces the permissions of every role in data. It never aborts:
// unknown roles and malformed ids end up in the report.
func (r *PermissionRegistry) Import(data map[string][]string) ImportReport {
	report := ImportReport{}

	for _, role := range slices.Sorted(maps.Keys(data)) {
		if err := r.checkRole(role); err != nil {
			report.Rejects = append(report.Rejects, Reject{Role: role, Err: err})
			continue
		}

		set, rejects := parsePermissionSet(role, data[role])
		report.Rejects = append(report.Rejects, rejects...)

		r.mu.Lock()
		r.perms[role] = set
		r.mu.Unlock()

		report.Roles++
		report.Assigned += len(set)
	}

	if report.HasRejects() {
		r.logger.Warn("permission import finished with rejects",
			"roles", report.Roles,
			"assigned", report.Assigned,
			"rejected", len(report.Rejects),
		)
	}
	return report
}

// ClearRole drops every permission of role.
func (r *PermissionRegistry) ClearRole(role string) {
	r.mu.Lock()
	delete(r.perms, role)
	r.mu.Unlock()
}
