package directory

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repos bundles the directory repositories behind one constructor.
type Repos struct {
	Resources repository.Repository[*Resource]
	Reviews   repository.Repository[*Review]
	Addresses repository.Repository[*Address]
	ZIPCodes  repository.Repository[*ZIPCode]

	db *bun.DB
}

// NewRepos builds repositories for the directory models.
func NewRepos(db *bun.DB) *Repos {
	return &Repos{
		db:        db,
		Resources: newRepository[*Resource](db, func() *Resource { return &Resource{} }, "name"),
		Reviews:   newRepository[*Review](db, func() *Review { return &Review{} }, "id"),
		Addresses: newRepository[*Address](db, func() *Address { return &Address{} }, "line_one"),
		ZIPCodes:  newRepository[*ZIPCode](db, func() *ZIPCode { return &ZIPCode{} }, "code"),
	}
}

// RunInTx executes fn inside a database transaction.
func (r *Repos) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, fn)
}

type identifiable interface {
	GetID() uuid.UUID
	SetID(uuid.UUID)
}

func (m *Resource) GetID() uuid.UUID   { return m.ID }
func (m *Resource) SetID(id uuid.UUID) { m.ID = id }
func (m *Review) GetID() uuid.UUID     { return m.ID }
func (m *Review) SetID(id uuid.UUID)   { m.ID = id }
func (m *Address) GetID() uuid.UUID    { return m.ID }
func (m *Address) SetID(id uuid.UUID)  { m.ID = id }
func (m *ZIPCode) GetID() uuid.UUID    { return m.ID }
func (m *ZIPCode) SetID(id uuid.UUID)  { m.ID = id }

func newRepository[T interface {
	identifiable
	comparable
}](db *bun.DB, newRecord func() T, identifier string) repository.Repository[T] {
	var zero T
	return repository.NewRepository[T](db, repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(m T) uuid.UUID {
			if m == zero {
				return uuid.Nil
			}
			return m.GetID()
		},
		SetID: func(m T, id uuid.UUID) {
			if m != zero {
				m.SetID(id)
			}
		},
		GetIdentifier: func() string {
			return identifier
		},
	})
}
