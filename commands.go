package access

import (
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// errDryRunRollback aborts a dry run transaction after the work is done.
var errDryRunRollback = errors.New("dry run rollback")

const commandTimeout = 30 * time.Second

// SetupRolesMessage syncs the declared roles into the role store.
type SetupRolesMessage struct {
	// Force rewrites records that already exist.
	Force bool `json:"force"`
	// UpdateUsers reconciles every principal afterwards.
	UpdateUsers bool `json:"update_users"`
	// DryRun runs everything in a transaction that is rolled back.
	DryRun bool `json:"dry_run"`
}

func (e SetupRolesMessage) Type() string { return "roles.setup" }

// SetupRolesResult reports what SetupRoles did or would do.
type SetupRolesResult struct {
	Created   []string    `json:"created,omitempty"`
	Updated   []string    `json:"updated,omitempty"`
	Unchanged []string    `json:"unchanged,omitempty"`
	Staff     *BulkResult `json:"staff,omitempty"`
	DryRun    bool        `json:"dry_run"`
}

// SetupRolesHandler creates the missing role records.
type SetupRolesHandler struct {
	store      Store
	roles      *RoleRegistry
	reconciler *StaffStatusReconciler
	activity   ActivitySink
	logger     Logger
}

func NewSetupRolesHandler(store Store, roles *RoleRegistry, reconciler *StaffStatusReconciler) *SetupRolesHandler {
	_, logger := ResolveLogger("access.commands", nil, nil)
	return &SetupRolesHandler{
		store:      store,
		roles:      roles,
		reconciler: reconciler,
		activity:   noopActivitySink{},
		logger:     logger,
	}
}

// WithActivitySink sets the sink used to emit role events.
func (h *SetupRolesHandler) WithActivitySink(sink ActivitySink) *SetupRolesHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SetupRolesHandler) WithLogger(logger Logger) *SetupRolesHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SetupRolesHandler) Execute(ctx context.Context, msg SetupRolesMessage) (SetupRolesResult, error) {
	select {
	case <-ctx.Done():
		return SetupRolesResult{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during role setup",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SetupRolesHandler) execute(ctx context.Context, msg SetupRolesMessage) (SetupRolesResult, error) {
	res := SetupRolesResult{DryRun: msg.DryRun}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	// the default goes last so a moved default never meets the old one
	declared := h.roles.Roles()
	slices.SortStableFunc(declared, func(a, b Role) int {
		switch {
		case a.IsDefault == b.IsDefault:
			return 0
		case a.IsDefault:
			return 1
		default:
			return -1
		}
	})

	err := h.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		for _, role := range declared {
			current, err := tx.Roles().GetRole(ctx, role.Name)
			switch {
			case errors.Is(err, ErrUnknownRole):
				if _, err := tx.Roles().CreateRole(ctx, NewRoleRecord(role)); err != nil {
					return err
				}
				res.Created = append(res.Created, role.Name)
			case err != nil:
				return err
			case msg.Force && !sameRole(current.Role(), role):
				next := NewRoleRecord(role)
				next.ID = current.ID
				if _, err := tx.Roles().UpdateRole(ctx, next); err != nil {
					return err
				}
				res.Updated = append(res.Updated, role.Name)
			default:
				res.Unchanged = append(res.Unchanged, role.Name)
			}
		}

		if msg.DryRun {
			return errDryRunRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRunRollback) {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return res, richErr
		}
		return res, goerrors.Wrap(err, goerrors.CategoryInternal, "role setup transaction failed")
	}

	h.logger.Info("roles set up",
		"created", res.Created,
		"updated", res.Updated,
		"unchanged", len(res.Unchanged),
		"dry_run", msg.DryRun,
	)

	if !msg.DryRun {
		for _, name := range res.Created {
			recordActivity(ctx, h.activity, h.logger, ActivityEvent{
				EventType: ActivityEventRoleCreated,
				Actor:     SystemActor,
				Role:      name,
			})
		}
		for _, name := range res.Updated {
			recordActivity(ctx, h.activity, h.logger, ActivityEvent{
				EventType: ActivityEventRoleUpdated,
				Actor:     SystemActor,
				Role:      name,
			})
		}
	}

	if msg.UpdateUsers && h.reconciler != nil {
		var opts []BulkOption
		if msg.DryRun {
			opts = append(opts, WithDryRun())
		}
		staff, err := h.reconciler.BulkUpdateStaffStatus(ctx, opts...)
		res.Staff = &staff
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

func sameRole(a, b Role) bool {
	return a.Name == b.Name &&
		a.DisplayLabel() == b.DisplayLabel() &&
		a.IsStaff == b.IsStaff &&
		a.IsDefault == b.IsDefault &&
		a.Description == b.Description
}

// SetupRolePermissionsMessage loads role permissions from data.
type SetupRolePermissionsMessage struct {
	// Role limits the import to one role.
	Role   string              `json:"role,omitempty"`
	Data   map[string][]string `json:"data"`
	DryRun bool                `json:"dry_run"`
}

func (e SetupRolePermissionsMessage) Type() string { return "roles.permissions.setup" }

// SetupRolePermissionsHandler writes permissions to the registry and the
// role store. Malformed permission ids are reported, not fatal.
type SetupRolePermissionsHandler struct {
	store    Store
	perms    *PermissionRegistry
	roles    *RoleRegistry
	activity ActivitySink
	logger   Logger
}

func NewSetupRolePermissionsHandler(store Store, roles *RoleRegistry, perms *PermissionRegistry) *SetupRolePermissionsHandler {
	_, logger := ResolveLogger("access.commands", nil, nil)
	return &SetupRolePermissionsHandler{
		store:    store,
		perms:    perms,
		roles:    roles,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *SetupRolePermissionsHandler) WithActivitySink(sink ActivitySink) *SetupRolePermissionsHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *SetupRolePermissionsHandler) WithLogger(logger Logger) *SetupRolePermissionsHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SetupRolePermissionsHandler) Execute(ctx context.Context, msg SetupRolePermissionsMessage) (ImportReport, error) {
	select {
	case <-ctx.Done():
		return ImportReport{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during permission setup",
		)
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SetupRolePermissionsHandler) execute(ctx context.Context, msg SetupRolePermissionsMessage) (ImportReport, error) {
	data := msg.Data
	if msg.Role != "" {
		if !h.roles.IsValidRole(msg.Role) {
			return ImportReport{}, unknownRole(msg.Role)
		}
		data = map[string][]string{msg.Role: msg.Data[msg.Role]}
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	report := ImportReport{}
	accepted := map[string][]string{}

	for _, role := range slices.Sorted(maps.Keys(data)) {
		ids := data[role]
		if !h.roles.IsValidRole(role) {
			report.Rejects = append(report.Rejects, Reject{Role: role, Err: unknownRole(role)})
			continue
		}
		set, rejects := parsePermissionSet(role, ids)
		report.Rejects = append(report.Rejects, rejects...)
		for ref := range set {
			accepted[role] = append(accepted[role], ref.String())
		}
		report.Roles++
		report.Assigned += len(set)
	}

	err := h.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		for role, ids := range accepted {
			if err := tx.Roles().SetRolePermissions(ctx, role, ids); err != nil {
				return err
			}
		}
		if msg.DryRun {
			return errDryRunRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRunRollback) {
		return report, err
	}

	for _, reject := range report.Rejects {
		h.logger.Warn("permission rejected",
			"role", reject.Role,
			"permission", reject.Permission,
			"error", reject.Err,
		)
	}

	if msg.DryRun {
		return report, nil
	}

	for role, ids := range accepted {
		if _, err := h.perms.SetPermissions(role, ids); err != nil {
			h.logger.Error("permission registry update failed", "role", role, "error", err)
			continue
		}
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType: ActivityEventPermissionsSynced,
			Actor:     SystemActor,
			Role:      role,
			Metadata:  map[string]any{"permissions": len(ids)},
		})
	}
	return report, nil
}

// SyncStaffStatusMessage reconciles the staff flag of every principal.
type SyncStaffStatusMessage struct {
	DryRun bool `json:"dry_run"`
}

func (e SyncStaffStatusMessage) Type() string { return "principals.staff.sync" }

type SyncStaffStatusHandler struct {
	reconciler *StaffStatusReconciler
	logger     Logger
}

func NewSyncStaffStatusHandler(reconciler *StaffStatusReconciler) *SyncStaffStatusHandler {
	_, logger := ResolveLogger("access.commands", nil, nil)
	return &SyncStaffStatusHandler{reconciler: reconciler, logger: logger}
}

func (h *SyncStaffStatusHandler) WithLogger(logger Logger) *SyncStaffStatusHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *SyncStaffStatusHandler) Execute(ctx context.Context, msg SyncStaffStatusMessage) (BulkResult, error) {
	select {
	case <-ctx.Done():
		return BulkResult{}, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during staff sync",
		)
	default:
	}

	var opts []BulkOption
	if msg.DryRun {
		opts = append(opts, WithDryRun())
	}

	res, err := h.reconciler.BulkUpdateStaffStatus(ctx, opts...)
	if err != nil {
		return res, err
	}

	for _, c := range res.Changes {
		h.logger.Info("staff flag change",
			"username", c.Username,
			"role", c.Role,
			"from", c.From,
			"to", c.To,
			"dry_run", msg.DryRun,
		)
	}
	h.logger.Info("staff sync finished",
		"examined", res.Examined,
		"updated", res.Updated,
		"failed", res.Failed,
		"dry_run", msg.DryRun,
	)
	return res, nil
}
