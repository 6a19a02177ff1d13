package community

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Tags() repository.Repository[*AffiliationTag]
}

func NewTagsRepository(db *bun.DB) repository.Repository[*AffiliationTag] {
	handlers := repository.ModelHandlers[*AffiliationTag]{
		NewRecord: func() *AffiliationTag {
			return &AffiliationTag{}
		},
		GetID: func(record *AffiliationTag) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *AffiliationTag, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "name"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db    *bun.DB
	users Users
	tags  repository.Repository[*AffiliationTag]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	// the m2m join model has to be registered before bun can resolve
	// the Tags relation on User
	db.RegisterModel((*UserTag)(nil))

	return &mngr{
		db:    db,
		users: NewUsersRepository(db),
		tags:  NewTagsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tags == nil {
		return errors.New("repository tags should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Tags() repository.Repository[*AffiliationTag] {
	return m.tags
}
