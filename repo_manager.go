package access

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes the bun repositories as a Store.
type RepositoryManager interface {
	repository.Validator
	Store
	DB() *bun.DB
}

type mngr struct {
	db         *bun.DB
	principals *principals
	roles      *roles
}

var _ RepositoryManager = (*mngr)(nil)

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:         db,
		principals: newPrincipals(db, db),
		roles:      newRoles(db, db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager needs a database")
	}

	if m.principals == nil {
		return errors.New("repository principals should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) DB() *bun.DB {
	return m.db
}

func (m mngr) Principals() PrincipalStore {
	return m.principals
}

func (m mngr) Roles() RoleStore {
	return m.roles
}

// RunInTx gives fn a Store whose repositories share one transaction.
func (m mngr) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return m.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txStore{
			principals: newPrincipals(m.db, tx),
			roles:      newRoles(m.db, tx),
		})
	})
}

type txStore struct {
	principals *principals
	roles      *roles
}

func (t *txStore) Principals() PrincipalStore { return t.principals }
func (t *txStore) Roles() RoleStore           { return t.roles }

// RunInTx reuses the open transaction.
func (t *txStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}
