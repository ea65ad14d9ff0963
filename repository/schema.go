package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-credentials"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type claimRecord struct {
	bun.BaseModel `bun:"table:account_claims,alias:acl"`
	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid,unique:uq_account_claim_type"`
	Type          string    `bun:"claim_type,notnull,unique:uq_account_claim_type"`
	Value         string    `bun:"claim_value,notnull"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
}

type membershipRecord struct {
	bun.BaseModel `bun:"table:account_roles,alias:acr"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
}

// Migrate creates the tables the store needs when they do not exist.
func Migrate(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*credentials.Account)(nil),
		(*credentials.Role)(nil),
		(*claimRecord)(nil),
		(*membershipRecord)(nil),
		(*credentials.PasswordHistoryEntry)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
