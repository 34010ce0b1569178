package access

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RoleNameMaxLength matches the width of the role name column.
const RoleNameMaxLength = 25

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Role describes a role principals can hold. A principal holds at most one.
type Role struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	IsStaff     bool   `json:"is_staff" yaml:"is_staff"`
	IsDefault   bool   `json:"is_default" yaml:"is_default"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// RoleInput is anything RegisterRoles can turn into a Role.
type RoleInput interface {
	roleRecord() Role
}

// RoleName declares a role by name only.
type RoleName string

// LabeledRole declares a role with a display label.
type LabeledRole struct {
	Name  string
	Label string
}

func (r RoleName) roleRecord() Role    { return Role{Name: string(r)} }
func (r LabeledRole) roleRecord() Role { return Role{Name: r.Name, Label: r.Label} }
func (r Role) roleRecord() Role        { return r }

// DisplayLabel returns Label or a label derived from Name.
func (r Role) DisplayLabel() string {
	if r.Label != "" {
		return r.Label
	}
	return labelFromName(r.Name)
}

func labelFromName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ValidateRoleName checks the role name format.
func ValidateRoleName(name string) error {
	if name == "" || len(name) > RoleNameMaxLength || !roleNamePattern.MatchString(name) {
		return newError(ErrInvalidRoleName, map[string]any{
			"role":       name,
			"max_length": RoleNameMaxLength,
			"pattern":    roleNamePattern.String(),
		})
	}
	return nil
}

// NormalizeRole converts decoded YAML or JSON data into a RoleInput. It
// accepts a bare name, a [name, label] pair or a map with name, label (or
// display_name), is_staff (or is_staff_role), is_default (or
// is_default_role) and description keys.
func NormalizeRole(raw any) (RoleInput, error) {
	switch t := raw.(type) {
	case RoleInput:
		return t, nil
	case string:
		return RoleName(t), nil
	case []string:
		return roleFromPair(raw, anySlice(t))
	case []any:
		return roleFromPair(raw, t)
	case map[string]any:
		role := Role{}
		var ok bool
		if role.Name, ok = t["name"].(string); !ok {
			return nil, invalidRoleInput(raw, "missing name")
		}
		role.Label = firstString(t, "label", "display_name")
		role.Description = firstString(t, "description")
		role.IsStaff = firstBool(t, "is_staff", "is_staff_role")
		role.IsDefault = firstBool(t, "is_default", "is_default_role")
		return role, nil
	default:
		return nil, invalidRoleInput(raw, "unsupported role shape")
	}
}

// NormalizeRoles applies NormalizeRole to every item.
func NormalizeRoles(raw []any) ([]RoleInput, error) {
	out := make([]RoleInput, 0, len(raw))
	for _, item := range raw {
		in, err := NormalizeRole(item)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func roleFromPair(raw any, pair []any) (RoleInput, error) {
	if len(pair) == 0 || len(pair) > 2 {
		return nil, invalidRoleInput(raw, "expected [name, label]")
	}
	name, ok := pair[0].(string)
	if !ok {
		return nil, invalidRoleInput(raw, "name must be a string")
	}
	if len(pair) == 1 {
		return RoleName(name), nil
	}
	label, ok := pair[1].(string)
	if !ok {
		return nil, invalidRoleInput(raw, "label must be a string")
	}
	return LabeledRole{Name: name, Label: label}, nil
}

func invalidRoleInput(raw any, reason string) error {
	return newError(ErrInvalidRoleName, map[string]any{
		"input":  fmt.Sprintf("%v", raw),
		"reason": reason,
	})
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}

func firstBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b
		}
	}
	return false
}

// RoleRegistry holds the declared roles, their staff flags and the default
// role given to new principals.
type RoleRegistry struct {
	mu          sync.RWMutex
	roles       []Role
	defaultRole string
	logger      Logger
}

// RoleRegistryOption customizes a RoleRegistry.
type RoleRegistryOption func(*RoleRegistry)

// WithRoleRegistryLogger sets the logger.
func WithRoleRegistryLogger(logger Logger) RoleRegistryOption {
	return func(r *RoleRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRoleRegistry(opts ...RoleRegistryOption) *RoleRegistry {
	_, logger := ResolveLogger("access.roles", nil, nil)
	r := &RoleRegistry{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegisterRoles replaces the whole role set. defaultRole, when not empty,
// must name one of the new roles. A role input flagged IsDefault counts as a
// default declaration too, and only one default may be declared. On error the
// previous role set is kept.
func (r *RoleRegistry) RegisterRoles(roles []RoleInput, defaultRole string) error {
	next := make([]Role, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	flagged := ""

	for _, in := range roles {
		if in == nil {
			continue
		}
		role := in.roleRecord()
		role.Name = strings.TrimSpace(role.Name)

		if err := ValidateRoleName(role.Name); err != nil {
			return err
		}
		if _, dup := seen[role.Name]; dup {
			return newError(ErrDuplicateRole, map[string]any{"role": role.Name})
		}
		seen[role.Name] = struct{}{}

		if role.IsDefault {
			if flagged != "" {
				return newError(ErrInvalidDefaultRole, map[string]any{
					"role":    role.Name,
					"default": flagged,
					"reason":  "only one role can be the default",
				})
			}
			flagged = role.Name
		}
		role.IsDefault = false
		next = append(next, role)
	}

	switch {
	case defaultRole == "":
		defaultRole = flagged
	case flagged != "" && flagged != defaultRole:
		return newError(ErrInvalidDefaultRole, map[string]any{
			"role":    defaultRole,
			"default": flagged,
			"reason":  "only one role can be the default",
		})
	}

	if defaultRole != "" {
		if _, ok := seen[defaultRole]; !ok {
			return newError(ErrInvalidDefaultRole, map[string]any{
				"role":   defaultRole,
				"roles":  slices.Sorted(maps.Keys(seen)),
				"reason": "default role is not registered",
			})
		}
	}

	r.mu.Lock()
	r.roles = next
	r.defaultRole = defaultRole
	r.mu.Unlock()

	r.logger.Debug("roles registered", "roles", len(next), "default", defaultRole)
	return nil
}

// AddRole adds a single role. The role must not exist yet.
func (r *RoleRegistry) AddRole(name, label string, isStaff bool) error {
	name = strings.TrimSpace(name)
	if err := ValidateRoleName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(name) >= 0 {
		return newError(ErrDuplicateRole, map[string]any{"role": name})
	}
	r.roles = append(r.roles, Role{Name: name, Label: label, IsStaff: isStaff})
	return nil
}

// UpdateRole replaces the label, description and flags of an existing role.
// Setting IsDefault fails while another role is the default. Clearing it on
// the current default unsets the default.
func (r *RoleRegistry) UpdateRole(role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(role.Name)
	if idx < 0 {
		return unknownRole(role.Name)
	}

	switch {
	case role.IsDefault && r.defaultRole != "" && r.defaultRole != role.Name:
		return newError(ErrInvalidDefaultRole, map[string]any{
			"role":    role.Name,
			"default": r.defaultRole,
			"reason":  "only one role can be the default",
		})
	case role.IsDefault:
		r.defaultRole = role.Name
	case r.defaultRole == role.Name:
		r.defaultRole = ""
	}

	role.IsDefault = false
	r.roles[idx] = role
	return nil
}

// RemoveRole drops a role. When it was the default, no role is default
// afterwards.
func (r *RoleRegistry) RemoveRole(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(name)
	if idx < 0 {
		return unknownRole(name)
	}

	r.roles = slices.Delete(r.roles, idx, idx+1)
	if r.defaultRole == name {
		r.defaultRole = ""
		r.logger.Warn("default role removed, no default role is set", "role", name)
	}
	return nil
}

// SetDefaultRole moves the default to name.
func (r *RoleRegistry) SetDefaultRole(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(name) < 0 {
		return unknownRole(name)
	}
	r.defaultRole = name
	return nil
}

// DefaultRole returns the default role, if any.
func (r *RoleRegistry) DefaultRole() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultRole, r.defaultRole != ""
}

// SetRoleStaffStatus changes the staff flag of a role and reports whether
// it changed. Principals are not touched, run the reconciler for that.
func (r *RoleRegistry) SetRoleStaffStatus(name string, isStaff bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(name)
	if idx < 0 {
		return false, unknownRole(name)
	}
	if r.roles[idx].IsStaff == isStaff {
		return false, nil
	}
	r.roles[idx].IsStaff = isStaff
	return true, nil
}

// RoleStaffStatus reports the staff flag of a role. Unknown roles are not staff.
func (r *RoleRegistry) RoleStaffStatus(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(name); idx >= 0 {
		return r.roles[idx].IsStaff
	}
	return false
}

func (r *RoleRegistry) IsValidRole(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(name) >= 0
}

// StaffRoles returns the names of staff roles in declaration order.
func (r *RoleRegistry) StaffRoles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, role := range r.roles {
		if role.IsStaff {
			out = append(out, role.Name)
		}
	}
	return out
}

// Roles returns a copy of the role set in declaration order.
func (r *RoleRegistry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Role, len(r.roles))
	for i, role := range r.roles {
		role.IsDefault = role.Name == r.defaultRole
		out[i] = role
	}
	return out
}

func (r *RoleRegistry) RoleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.roles))
	for i, role := range r.roles {
		out[i] = role.Name
	}
	return out
}

// Role returns a single role by name.
func (r *RoleRegistry) Role(name string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexOf(name)
	if idx < 0 {
		return Role{}, false
	}
	role := r.roles[idx]
	role.IsDefault = role.Name == r.defaultRole
	return role, true
}

func (r *RoleRegistry) indexOf(name string) int {
	return slices.IndexFunc(r.roles, func(role Role) bool {
		return role.Name == name
	})
}

func unknownRole(name string) error {
	return newError(ErrUnknownRole, map[string]any{"role": name})
}
