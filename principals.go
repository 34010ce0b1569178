package access

import (
	"context"
	"slices"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// SuperuserPreferredRole is the role given to new superusers when it is a
// staff role.
const SuperuserPreferredRole = "admin"

// NewPrincipal is the input of PrincipalService.Create.
type NewPrincipal struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
	// Role overrides the default role.
	Role string `json:"role,omitempty"`
	// UseHashid derives the principal ID from the email.
	UseHashid bool `json:"-"`
}

// PrincipalService owns the principal write path: creation with default
// roles, role changes and saves. Membership changes are published as
// MembershipChanged events for the reconciler.
type PrincipalService struct {
	principals PrincipalStore
	roles      *RoleRegistry
	events     EventPublisher
	activity   ActivitySink
	logger     Logger
}

// PrincipalServiceOption customizes a PrincipalService.
type PrincipalServiceOption func(*PrincipalService)

func WithPrincipalEvents(p EventPublisher) PrincipalServiceOption {
	return func(s *PrincipalService) {
		s.events = p
	}
}

func WithPrincipalActivitySink(sink ActivitySink) PrincipalServiceOption {
	return func(s *PrincipalService) {
		s.activity = sink
	}
}

func WithPrincipalLogger(logger Logger) PrincipalServiceOption {
	return func(s *PrincipalService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewPrincipalService(principals PrincipalStore, roles *RoleRegistry, opts ...PrincipalServiceOption) *PrincipalService {
	_, logger := ResolveLogger("access.principals", nil, nil)
	s := &PrincipalService{
		principals: principals,
		roles:      roles,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.events = normalizePublisher(s.events)
	return s
}

// Create stores a new principal and gives it a role: the requested one, the
// default role, or for superusers a staff role.
func (s *PrincipalService) Create(ctx context.Context, in NewPrincipal) (*Principal, error) {
	if in.Role != "" && !s.roles.IsValidRole(in.Role) {
		return nil, unknownRole(in.Role)
	}

	p := &Principal{
		Username:    strings.TrimSpace(in.Username),
		Email:       strings.TrimSpace(in.Email),
		IsSuperuser: in.IsSuperuser,
		IsStaff:     in.IsSuperuser,
	}
	if in.UseHashid && p.Email != "" {
		if id, err := hashid.NewUUID(p.Email); err == nil {
			p.ID = id
		}
	}

	p, err := s.principals.CreatePrincipal(ctx, p)
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, MembershipChanged{PrincipalID: p.ID.String(), Action: MembershipCreated})

	switch {
	case in.Role != "":
		err = s.SetRole(ctx, p.ID, in.Role)
	case p.IsSuperuser:
		s.assignSuperuserRole(ctx, p)
	default:
		if role, ok := s.roles.DefaultRole(); ok {
			err = s.SetRole(ctx, p.ID, role)
		} else {
			s.logger.Warn("no default role configured, principal has no role",
				"principal_id", p.ID.String(),
				"username", p.Username,
			)
		}
	}
	if err != nil {
		return nil, err
	}

	return s.principals.GetPrincipal(ctx, p.ID)
}

// assignSuperuserRole prefers the admin role when it is a staff role, then
// the first staff role. A non staff admin role is assigned and promoted to
// staff. Failures are logged, the superuser stays staff regardless.
func (s *PrincipalService) assignSuperuserRole(ctx context.Context, p *Principal) {
	role := ""
	promote := false

	if staff := s.roles.StaffRoles(); len(staff) > 0 {
		role = staff[0]
		if slices.Contains(staff, SuperuserPreferredRole) {
			role = SuperuserPreferredRole
		}
	} else if s.roles.IsValidRole(SuperuserPreferredRole) {
		role, promote = SuperuserPreferredRole, true
	}

	if role == "" {
		s.logger.Warn("superuser created without role",
			"principal_id", p.ID.String(),
			"error", newError(ErrSuperuserRoleUnavailable, nil),
		)
		return
	}

	if err := s.SetRole(ctx, p.ID, role); err != nil {
		s.logger.Warn("superuser role assignment failed",
			"principal_id", p.ID.String(),
			"role", role,
			"error", err,
		)
		return
	}

	if promote {
		if _, err := s.roles.SetRoleStaffStatus(role, true); err != nil {
			s.logger.Warn("could not mark superuser role as staff", "role", role, "error", err)
		}
	}
}

// SetRole moves the principal to role, leaving every other role group.
func (s *PrincipalService) SetRole(ctx context.Context, id uuid.UUID, role string) error {
	if !s.roles.IsValidRole(role) {
		return unknownRole(role)
	}

	groups, err := s.principals.Groups(ctx, id)
	if err != nil {
		return err
	}

	var stale []string
	for _, g := range groups {
		if g != role && s.roles.IsValidRole(g) {
			stale = append(stale, g)
		}
	}

	if len(stale) > 0 {
		if err := s.principals.RemoveGroups(ctx, id, stale...); err != nil {
			return err
		}
		s.events.Publish(ctx, MembershipChanged{PrincipalID: id.String(), Action: MembershipRemoved})
	}

	if !slices.Contains(groups, role) {
		if err := s.principals.AddGroups(ctx, id, role); err != nil {
			return err
		}
		s.events.Publish(ctx, MembershipChanged{PrincipalID: id.String(), Action: MembershipAdded})
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:   ActivityEventRoleAssigned,
		PrincipalID: id.String(),
		Role:        role,
		Metadata:    map[string]any{"removed": stale},
	})
	return nil
}

// AddGroup joins a group. Joining a second role group fails with
// ErrMultipleRoles and changes nothing, use SetRole to switch roles.
func (s *PrincipalService) AddGroup(ctx context.Context, id uuid.UUID, group string) error {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil
	}

	groups, err := s.principals.Groups(ctx, id)
	if err != nil {
		return err
	}
	if slices.Contains(groups, group) {
		return nil
	}

	if s.roles.IsValidRole(group) {
		if _, err := singleRole(id, append(slices.Clone(groups), group), s.roles); err != nil {
			return err
		}
	}

	if err := s.principals.AddGroups(ctx, id, group); err != nil {
		return err
	}
	s.events.Publish(ctx, MembershipChanged{PrincipalID: id.String(), Action: MembershipAdded})
	return nil
}

// RemoveGroup leaves a group.
func (s *PrincipalService) RemoveGroup(ctx context.Context, id uuid.UUID, group string) error {
	if err := s.principals.RemoveGroups(ctx, id, group); err != nil {
		return err
	}
	s.events.Publish(ctx, MembershipChanged{PrincipalID: id.String(), Action: MembershipRemoved})
	return nil
}

// ClearGroups leaves every group.
func (s *PrincipalService) ClearGroups(ctx context.Context, id uuid.UUID) error {
	groups, err := s.principals.Groups(ctx, id)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}
	if err := s.principals.RemoveGroups(ctx, id, groups...); err != nil {
		return err
	}
	s.events.Publish(ctx, MembershipChanged{PrincipalID: id.String(), Action: MembershipCleared})
	return nil
}

// Save writes p after applying the staff rules: superusers are staff, other
// principals take the staff flag of their role. When the role cannot be
// determined the stored staff flag is kept and the save still goes through.
func (s *PrincipalService) Save(ctx context.Context, p *Principal) (*Principal, error) {
	if p == nil || p.ID == uuid.Nil {
		return nil, goerrors.New("principal id is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if p.IsSuperuser {
		p.IsStaff = true
	} else if role, err := s.Role(ctx, p.ID); err != nil {
		s.logger.Warn("staff flag left unchanged on save",
			"principal_id", p.ID.String(),
			"error", err,
		)
		current, getErr := s.principals.GetPrincipal(ctx, p.ID)
		if getErr != nil {
			return nil, getErr
		}
		p.IsStaff = current.IsStaff
	} else {
		p.IsStaff = role != "" && s.roles.RoleStaffStatus(role)
	}

	return s.principals.SavePrincipal(ctx, p)
}

// Get loads a principal.
func (s *PrincipalService) Get(ctx context.Context, id uuid.UUID) (*Principal, error) {
	return s.principals.GetPrincipal(ctx, id)
}

// Role returns the principal's role or "" when it has none.
func (s *PrincipalService) Role(ctx context.Context, id uuid.UUID) (string, error) {
	groups, err := s.principals.Groups(ctx, id)
	if err != nil {
		return "", err
	}
	return singleRole(id, groups, s.roles)
}

// HasRole reports whether the principal is in the named group. Lookup
// failures yield false.
func (s *PrincipalService) HasRole(ctx context.Context, id uuid.UUID, role string) bool {
	groups, err := s.principals.Groups(ctx, id)
	if err != nil {
		s.logger.Debug("has role lookup failed", "principal_id", id.String(), "error", err)
		return false
	}
	return slices.Contains(groups, role)
}

// Validate checks that the principal holds at most one role group.
func (s *PrincipalService) Validate(ctx context.Context, id uuid.UUID) error {
	_, err := s.Role(ctx, id)
	return err
}
