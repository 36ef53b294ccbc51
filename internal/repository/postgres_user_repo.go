package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bunny-plus/backend/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db               *sql.DB
	startingCurrency int
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
// startingCurrencyは新規ユーザー作成時の初期残高。
func NewPostgresUserRepo(db *sql.DB, startingCurrency int) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, startingCurrency: startingCurrency}
}

// Upsert はユーザーを作成または更新する。
// ON CONFLICT DO UPDATE による単一文のため、同一IDの同時ログインでも
// 行の重複やプロフィール更新の消失は発生しない。
// 既存行の場合、currencyとonboardingは変更しない。
func (r *PostgresUserRepo) Upsert(ctx context.Context, discordID, username, avatar string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (discord_id, username, avatar, currency, onboarding, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, now(), now())
		 ON CONFLICT (discord_id) DO UPDATE
		 SET username = EXCLUDED.username, avatar = EXCLUDED.avatar, updated_at = now()
		 RETURNING discord_id, username, avatar, currency, onboarding, created_at, updated_at`,
		discordID, username, avatar, r.startingCurrency,
	).Scan(&user.DiscordID, &user.Username, &user.Avatar, &user.Currency, &user.Onboarding, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// FindByDiscordID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT discord_id, username, avatar, currency, onboarding, created_at, updated_at
		 FROM users WHERE discord_id = $1`,
		discordID,
	).Scan(&user.DiscordID, &user.Username, &user.Avatar, &user.Currency, &user.Onboarding, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// CompleteOnboarding はオンボーディング完了フラグを立てる。
// 対象行が存在しない・すでにtrueの場合も冪等に成功する。
func (r *PostgresUserRepo) CompleteOnboarding(ctx context.Context, discordID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET onboarding = true, updated_at = now() WHERE discord_id = $1`,
		discordID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}
	return nil
}

// SpendCurrency は残高の条件付き減算を行う。
// WHERE currency >= amount 付きの単一UPDATEで検証と減算を原子的に行うため、
// 同一ユーザーへの同時リクエストでも残高が負になることはない。
func (r *PostgresUserRepo) SpendCurrency(ctx context.Context, discordID string, amount int) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET currency = currency - $2, updated_at = now()
		 WHERE discord_id = $1 AND currency >= $2
		 RETURNING discord_id, username, avatar, currency, onboarding, created_at, updated_at`,
		discordID, amount,
	).Scan(&user.DiscordID, &user.Username, &user.Avatar, &user.Currency, &user.Onboarding, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		// 条件不成立: ユーザー不在か残高不足かを区別する
		existing, findErr := r.FindByDiscordID(ctx, discordID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientCurrency
	}
	if err != nil {
		return nil, fmt.Errorf("failed to spend currency: %w", err)
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
