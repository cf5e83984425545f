package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tiffin/internal/domain/promotion"
)

const (
	findPromotionSQL = `SELECT code, kind, percentage, cap, min_subtotal, single_use,
		description, valid_from, valid_until
		FROM promotions WHERE code = UPPER($1) AND active = TRUE`

	upsertPromotionSQL = `INSERT INTO promotions
		(code, kind, percentage, cap, min_subtotal, single_use, description, valid_from, valid_until)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind, percentage = EXCLUDED.percentage, cap = EXCLUDED.cap,
			min_subtotal = EXCLUDED.min_subtotal, single_use = EXCLUDED.single_use,
			description = EXCLUDED.description, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, active = TRUE`

	hasRedeemedSQL = `SELECT EXISTS (
		SELECT 1 FROM promotion_redemptions WHERE account_id = $1 AND code = $2)`
)

var (
	_ promotion.Repository   = (*PromotionRepository)(nil)
	_ promotion.UsageHistory = (*PromotionRepository)(nil)
)

// PromotionRepository implements promotion.Repository and
// promotion.UsageHistory backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up an active promotion by its code (case-insensitive).
// Returns promotion.ErrUnknownCode when no matching active promotion exists.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, findPromotionSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrUnknownCode
		}
		return nil, fmt.Errorf("finding promotion %q: %w", code, err)
	}
	return &rule, nil
}

// Upsert inserts or replaces a promotion and reactivates it.
func (r *PromotionRepository) Upsert(ctx context.Context, rule promotion.Rule) error {
	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		rule.Code, string(rule.Kind), rule.Percentage, rule.Cap, rule.MinSubtotal,
		rule.SingleUsePerAccount, rule.Description, rule.ValidFrom, rule.ValidUntil,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", rule.Code, err)
	}
	return nil
}

// UpsertBatch upserts rules in a single round trip.
func (r *PromotionRepository) UpsertBatch(ctx context.Context, rules []promotion.Rule) error {
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertPromotionSQL,
			rule.Code, string(rule.Kind), rule.Percentage, rule.Cap, rule.MinSubtotal,
			rule.SingleUsePerAccount, rule.Description, rule.ValidFrom, rule.ValidUntil,
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d promotions: %w", len(rules), err)
	}
	return nil
}

// HasRedeemed reports whether accountID has redeemed code.
func (r *PromotionRepository) HasRedeemed(ctx context.Context, accountID, code string) (bool, error) {
	var used bool
	if err := r.pool.QueryRow(ctx, hasRedeemedSQL, accountID, code).Scan(&used); err != nil {
		return false, fmt.Errorf("checking redemption of %q: %w", code, err)
	}
	return used, nil
}

func scanRule(row pgx.CollectableRow) (promotion.Rule, error) {
	var (
		rule promotion.Rule
		kind string
	)
	err := row.Scan(
		&rule.Code, &kind, &rule.Percentage, &rule.Cap, &rule.MinSubtotal,
		&rule.SingleUsePerAccount, &rule.Description, &rule.ValidFrom, &rule.ValidUntil,
	)
	rule.Kind = promotion.Kind(kind)
	return rule, err
}
