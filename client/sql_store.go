package client

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Metadata is a row of the client_metadata table
type Metadata struct {
	bun.BaseModel `bun:"table:client_metadata,alias:cm"`
	Name          string     `bun:"name,pk"`
	Value         string     `bun:"value,notnull"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero"`
}

// SQLStore persists session metadata in a bun database
type SQLStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ TokenStore = (*SQLStore)(nil)

func NewSQLStore(db *bun.DB) *SQLStore {
	return &SQLStore{
		db:  db,
		now: time.Now,
	}
}

// Init creates the metadata table when missing
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Metadata)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create client metadata table")
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	record := &Metadata{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.CategoryInternal, "failed to read client metadata")
	}
	return record.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	now := s.now().UTC()
	record := &Metadata{
		Name:      key,
		Value:     value,
		UpdatedAt: &now,
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write client metadata")
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*Metadata)(nil)).
		Where("name = ?", key).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete client metadata")
	}
	return nil
}
