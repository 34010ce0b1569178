package access

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Principal is an account whose staff flag is derived from its role.
type Principal struct {
	bun.BaseModel `bun:"table:principals,alias:prn"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string         `bun:"email" json:"email,omitempty"`
	IsSuperuser   bool           `bun:"is_superuser,notnull" json:"is_superuser"`
	IsStaff       bool           `bun:"is_staff,notnull" json:"is_staff"`
	Metadata      map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AddMetadata sets a metadata key.
func (p *Principal) AddMetadata(key string, val any) *Principal {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = val
	return p
}

// RoleRecord is the persisted form of a Role.
type RoleRecord struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name"`
	Label         string     `bun:"label" json:"label,omitempty"`
	IsStaff       bool       `bun:"is_staff,notnull" json:"is_staff"`
	IsDefault     bool       `bun:"is_default,notnull" json:"is_default"`
	Description   string     `bun:"description" json:"description,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role converts the record into a Role.
func (r *RoleRecord) Role() Role {
	if r == nil {
		return Role{}
	}
	return Role{
		Name:        r.Name,
		Label:       r.Label,
		IsStaff:     r.IsStaff,
		IsDefault:   r.IsDefault,
		Description: r.Description,
	}
}

// NewRoleRecord builds a record from a Role.
func NewRoleRecord(role Role) *RoleRecord {
	return &RoleRecord{
		Name:        role.Name,
		Label:       role.DisplayLabel(),
		IsStaff:     role.IsStaff,
		IsDefault:   role.IsDefault,
		Description: role.Description,
	}
}

// PrincipalGroup links a principal to a named group. Groups whose name is a
// registered role are role groups.
type PrincipalGroup struct {
	bun.BaseModel `bun:"table:principal_groups,alias:pg"`
	PrincipalID   uuid.UUID  `bun:"principal_id,pk,type:uuid" json:"principal_id"`
	GroupName     string     `bun:"group_name,pk" json:"group_name"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// RolePermission grants a "domain.action" permission to a role.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`
	RoleName      string     `bun:"role_name,pk" json:"role_name"`
	Permission    string     `bun:"permission,pk" json:"permission"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
