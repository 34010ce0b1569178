package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RoleSource answers the role questions the reconciler needs. RoleRegistry
// satisfies it.
type RoleSource interface {
	IsValidRole(name string) bool
	RoleStaffStatus(name string) bool
}

// StaffChange describes one staff flag the reconciler wrote, or would write
// in dry run mode.
type StaffChange struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role,omitempty"`
	From        bool      `json:"from"`
	To          bool      `json:"to"`
}

// BulkResult summarizes a bulk reconciliation.
type BulkResult struct {
	Examined int           `json:"examined"`
	Updated  int           `json:"updated"`
	Failed   int           `json:"failed"`
	DryRun   bool          `json:"dry_run"`
	Changes  []StaffChange `json:"changes,omitempty"`
}

type bulkOptions struct {
	dryRun bool
}

// BulkOption customizes BulkUpdateStaffStatus.
type BulkOption func(*bulkOptions)

// WithDryRun reports the changes without writing them.
func WithDryRun() BulkOption {
	return func(o *bulkOptions) {
		o.dryRun = true
	}
}

// StaffStatusReconciler keeps each principal's staff flag equal to the
// staff flag of its role. Superusers are always staff.
type StaffStatusReconciler struct {
	principals PrincipalStore
	roles      RoleSource
	logger     Logger
	activity   ActivitySink
	metrics    *Metrics
	flight     singleflight.Group
}

// ReconcilerOption customizes a StaffStatusReconciler.
type ReconcilerOption func(*StaffStatusReconciler)

func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *StaffStatusReconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithReconcilerActivitySink(sink ActivitySink) ReconcilerOption {
	return func(r *StaffStatusReconciler) {
		r.activity = sink
	}
}

func WithReconcilerMetrics(m *Metrics) ReconcilerOption {
	return func(r *StaffStatusReconciler) {
		r.metrics = m
	}
}

func NewStaffStatusReconciler(principals PrincipalStore, roles RoleSource, opts ...ReconcilerOption) *StaffStatusReconciler {
	_, logger := ResolveLogger("access.reconciler", nil, nil)
	r := &StaffStatusReconciler{
		principals: principals,
		roles:      roles,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RoleOf returns the single role group of a principal, or "" when it has
// none. More than one role group is ErrMultipleRoles.
func (r *StaffStatusReconciler) RoleOf(ctx context.Context, id uuid.UUID) (string, error) {
	groups, err := r.principals.Groups(ctx, id)
	if err != nil {
		return "", err
	}
	return singleRole(id, groups, r.roles)
}

func singleRole(id uuid.UUID, groups []string, roles RoleSource) (string, error) {
	var held []string
	for _, g := range groups {
		if roles.IsValidRole(g) {
			held = append(held, g)
		}
	}

	switch len(held) {
	case 0:
		return "", nil
	case 1:
		return held[0], nil
	default:
		return "", newError(ErrMultipleRoles, map[string]any{
			"principal_id": id.String(),
			"roles":        held,
		})
	}
}

// Reconcile recomputes and persists the staff flag of one principal. It
// reports whether the flag changed. On ErrMultipleRoles the flag is left as
// it is.
func (r *StaffStatusReconciler) Reconcile(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := r.principals.GetPrincipal(ctx, id)
	if err != nil {
		r.metrics.reconciled(outcomeFailed)
		return false, err
	}

	change, err := r.reconcile(ctx, p, true)
	if err != nil {
		return false, err
	}
	return change != nil, nil
}

func (r *StaffStatusReconciler) reconcile(ctx context.Context, p *Principal, apply bool) (*StaffChange, error) {
	role := ""
	target := true

	if !p.IsSuperuser {
		var err error
		if role, err = r.RoleOf(ctx, p.ID); err != nil {
			r.metrics.reconciled(outcomeFailed)
			return nil, err
		}
		target = role != "" && r.roles.RoleStaffStatus(role)
	}

	if p.IsStaff == target {
		r.metrics.reconciled(outcomeUnchanged)
		return nil, nil
	}

	change := &StaffChange{
		PrincipalID: p.ID,
		Username:    p.Username,
		Role:        role,
		From:        p.IsStaff,
		To:          target,
	}
	if !apply {
		r.metrics.reconciled(outcomeSkipped)
		return change, nil
	}

	if err := r.principals.UpdateStaffFlag(ctx, p.ID, target); err != nil {
		r.metrics.reconciled(outcomeFailed)
		return nil, err
	}
	r.metrics.reconciled(outcomeUpdated)

	r.logger.Info("staff flag updated",
		"principal_id", p.ID.String(),
		"username", p.Username,
		"role", role,
		"is_staff", target,
	)
	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType:   ActivityEventStaffReconciled,
		PrincipalID: p.ID.String(),
		Role:        role,
		Metadata: map[string]any{
			"from": change.From,
			"to":   change.To,
		},
	})
	return change, nil
}

// HandleEvent reacts to bus events. Errors are logged, never returned, so
// the action that published the event is not affected.
func (r *StaffStatusReconciler) HandleEvent(ctx context.Context, event Event) {
	switch e := event.(type) {
	case MembershipChanged:
		id, err := uuid.Parse(e.PrincipalID)
		if err != nil {
			r.logger.Error("membership event with invalid principal id",
				"principal_id", e.PrincipalID,
				"error", err,
			)
			return
		}
		if _, err := r.Reconcile(ctx, id); err != nil {
			r.logger.Error("staff flag reconciliation failed",
				"principal_id", e.PrincipalID,
				"action", string(e.Action),
				"error", err,
			)
		}
	case RoleDefinitionChanged:
		res, err := r.BulkUpdateStaffStatus(ctx)
		if err != nil {
			r.logger.Error("bulk staff flag reconciliation failed", "role", e.Role, "error", err)
			return
		}
		r.logger.Info("bulk staff flag reconciliation finished",
			"role", e.Role,
			"examined", res.Examined,
			"updated", res.Updated,
			"failed", res.Failed,
		)
	}
}

// BulkUpdateStaffStatus reconciles every non superuser principal. Each
// principal is committed on its own and role data is read per principal.
// Failures for single principals are counted and logged. Concurrent calls
// with the same options share one run; a caller whose ctx ends stops waiting
// while the run finishes for the others.
func (r *StaffStatusReconciler) BulkUpdateStaffStatus(ctx context.Context, opts ...BulkOption) (BulkResult, error) {
	o := bulkOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	key := "bulk"
	if o.dryRun {
		key = "bulk:dry-run"
	}

	if err := ctx.Err(); err != nil {
		return BulkResult{DryRun: o.dryRun}, err
	}

	// callers share the run, it outlives any single caller's ctx
	runCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(key, func() (any, error) {
		return r.bulk(runCtx, o)
	})

	select {
	case <-ctx.Done():
		return BulkResult{DryRun: o.dryRun}, ctx.Err()
	case out := <-ch:
		res, _ := out.Val.(BulkResult)
		return res, out.Err
	}
}

func (r *StaffStatusReconciler) bulk(ctx context.Context, o bulkOptions) (BulkResult, error) {
	start := time.Now()
	res := BulkResult{DryRun: o.dryRun}

	list, err := r.principals.ListPrincipals(ctx, PrincipalFilter{ExcludeSuperusers: true})
	if err != nil {
		r.metrics.bulkFinished(outcomeFailed, time.Since(start).Seconds(), 0)
		return res, err
	}

	for _, p := range list {
		res.Examined++
		change, err := r.reconcile(ctx, p, !o.dryRun)
		if err != nil {
			res.Failed++
			level := r.logger.Error
			if errors.Is(err, ErrMultipleRoles) {
				level = r.logger.Warn
			}
			level("staff flag reconciliation failed",
				"principal_id", p.ID.String(),
				"username", p.Username,
				"error", err,
			)
			continue
		}
		if change != nil {
			res.Updated++
			res.Changes = append(res.Changes, *change)
		}
	}

	r.metrics.bulkFinished(outcomeUpdated, time.Since(start).Seconds(), res.Updated)
	return res, nil
}
