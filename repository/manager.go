package repository

import (
	"context"
	"errors"
	"log"

	"github.com/goliatone/go-credentials"
	"github.com/uptrace/bun"
)

func (s *Store) Validate() error {
	if s.root == nil {
		return errors.New("repository database should be initialized")
	}

	if s.tokens == nil {
		return errors.New("repository provider tokens should be initialized")
	}

	return nil
}

func (s *Store) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

// RunInTx runs fn in a database transaction. Nested calls reuse the
// enclosing transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, accounts credentials.CredentialStore, roles credentials.RoleStore) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if _, inTx := s.db.(bun.Tx); inTx {
		return fn(ctx, s, s)
	}

	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		bound := s.withTx(tx)
		return fn(ctx, bound, bound)
	})
}

func (s *Store) withTx(tx bun.Tx) *Store {
	c := *s
	c.db = tx
	return &c
}

func (s *Store) Accounts() credentials.CredentialStore       { return s }
func (s *Store) Roles() credentials.RoleStore                { return s }
func (s *Store) PasswordHistory() credentials.PasswordHistory { return s }
