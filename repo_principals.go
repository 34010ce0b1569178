package access

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UpdateStaffFlagSQL writes the staff column and nothing else.
var UpdateStaffFlagSQL = `UPDATE "principals"
SET
	"is_staff" = ?,
	"updated_at" = ?
WHERE
	"id" = ?;`

// Principals is the bun backed PrincipalStore.
type Principals interface {
	repository.Repository[*Principal]
	PrincipalStore
}

type principals struct {
	repository.Repository[*Principal]
	db bun.IDB
}

var (
	_ Principals                        = (*principals)(nil)
	_ repository.Repository[*Principal] = (*principals)(nil)
)

// NewPrincipalsRepository returns a PrincipalStore on db.
func NewPrincipalsRepository(db *bun.DB) Principals {
	return newPrincipals(db, db)
}

func newPrincipals(db *bun.DB, idb bun.IDB) *principals {
	repo := repository.NewRepository[*Principal](db, repository.ModelHandlers[*Principal]{
		NewRecord: func() *Principal { return &Principal{} },
		GetID: func(p *Principal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Principal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &principals{
		Repository: repo,
		db:         idb,
	}
}

func (a *principals) GetPrincipal(ctx context.Context, id uuid.UUID) (*Principal, error) {
	record := &Principal{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, principalNotFound(id)
		}
		return nil, persistenceError(err, "get_principal", map[string]any{"principal_id": id.String()})
	}
	return record, nil
}

func (a *principals) CreatePrincipal(ctx context.Context, p *Principal) (*Principal, error) {
	preparePrincipalDefaults(p)
	record, err := a.Repository.CreateTx(ctx, a.db, p)
	if err != nil {
		return nil, persistenceError(err, "create_principal", map[string]any{"username": p.Username})
	}
	return record, nil
}

// SavePrincipal writes every column of p. Staff flag rules are applied by
// PrincipalService before it gets here.
func (a *principals) SavePrincipal(ctx context.Context, p *Principal) (*Principal, error) {
	current, err := a.GetPrincipal(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = &now

	record, err := a.Repository.UpdateTx(ctx, a.db, p, repository.UpdateByID(p.ID.String()))
	if err != nil {
		return nil, persistenceError(err, "save_principal", map[string]any{"principal_id": p.ID.String()})
	}
	return record, nil
}

func (a *principals) ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error) {
	var records []*Principal
	q := a.db.NewSelect().Model(&records)

	if filter.ExcludeSuperusers {
		q = q.Where("?TableAlias.is_superuser = ?", false)
	}
	if filter.Group != "" {
		q = q.Where(`EXISTS (
			SELECT 1 FROM "principal_groups" AS "pg"
			WHERE "pg"."principal_id" = ?TableAlias.id AND "pg"."group_name" = ?
		)`, filter.Group)
	}

	if err := q.OrderExpr("?TableAlias.username ASC").Scan(ctx); err != nil {
		if repository.IsRecordNotFound(err) {
			return []*Principal{}, nil
		}
		return nil, persistenceError(err, "list_principals", nil)
	}
	return records, nil
}

func (a *principals) Groups(ctx context.Context, id uuid.UUID) ([]string, error) {
	var names []string
	err := a.db.NewSelect().
		Model((*PrincipalGroup)(nil)).
		Column("group_name").
		Where("principal_id = ?", id).
		OrderExpr("group_name ASC").
		Scan(ctx, &names)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, persistenceError(err, "principal_groups", map[string]any{"principal_id": id.String()})
	}
	return names, nil
}

func (a *principals) AddGroups(ctx context.Context, id uuid.UUID, groups ...string) error {
	if len(groups) == 0 {
		return nil
	}
	if err := a.mustExist(ctx, id); err != nil {
		return err
	}

	rows := make([]*PrincipalGroup, 0, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			rows = append(rows, &PrincipalGroup{PrincipalID: id, GroupName: g})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := a.db.NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return persistenceError(err, "add_groups", map[string]any{
		"principal_id": id.String(),
		"groups":       groups,
	})
}

func (a *principals) RemoveGroups(ctx context.Context, id uuid.UUID, groups ...string) error {
	if len(groups) == 0 {
		return nil
	}
	_, err := a.db.NewDelete().
		Model((*PrincipalGroup)(nil)).
		Where("principal_id = ?", id).
		Where("group_name IN (?)", bun.In(groups)).
		Exec(ctx)
	return persistenceError(err, "remove_groups", map[string]any{
		"principal_id": id.String(),
		"groups":       groups,
	})
}

func (a *principals) UpdateStaffFlag(ctx context.Context, id uuid.UUID, isStaff bool) error {
	res, err := a.db.NewRaw(UpdateStaffFlagSQL, isStaff, time.Now(), id).Exec(ctx)
	if err != nil {
		return persistenceError(err, "update_staff_flag", map[string]any{"principal_id": id.String()})
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return principalNotFound(id)
	}
	return nil
}

func (a *principals) mustExist(ctx context.Context, id uuid.UUID) error {
	ok, err := a.db.NewSelect().
		Model((*Principal)(nil)).
		Where("?TableAlias.id = ?", id).
		Exists(ctx)
	if err != nil {
		return persistenceError(err, "principal_exists", map[string]any{"principal_id": id.String()})
	}
	if !ok {
		return principalNotFound(id)
	}
	return nil
}

func preparePrincipalDefaults(p *Principal) {
	if p == nil {
		return
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.IsSuperuser {
		p.IsStaff = true
	}
	p.Username = principalUsername(p.Username, p.Email)
}

func principalUsername(username, email string) string {
	if username != "" {
		return username
	}
	if name, _, ok := strings.Cut(email, "@"); ok {
		return name
	}
	return email
}
