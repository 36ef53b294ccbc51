package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bunny-plus/backend/internal/model"
)

// PostgresPresenceRepo はPostgreSQLを使用したプレゼンス集計リポジトリ。
// 配信tickごとに呼ばれる読み取り専用のクエリのみを持つ。
type PostgresPresenceRepo struct {
	db *sql.DB
}

// NewPostgresPresenceRepo はPostgresPresenceRepoを生成する。
func NewPostgresPresenceRepo(db *sql.DB) *PostgresPresenceRepo {
	return &PostgresPresenceRepo{db: db}
}

// ListOnlineUsers は有効なセッションを1つ以上持つユーザーを、
// 現在の残高とレアリティ別の所有枚数付きで返す。
// セッションはEXISTSで判定するため、同一ユーザーの複数セッションが
// 枚数集計を重複させることはない。
func (r *PostgresPresenceRepo) ListOnlineUsers(ctx context.Context) ([]*model.OnlineUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.discord_id, u.username, u.avatar, u.currency,
		        COUNT(*) FILTER (WHERE c.rarity = 'R')   AS common_count,
		        COUNT(*) FILTER (WHERE c.rarity = 'SR')  AS rare_count,
		        COUNT(*) FILTER (WHERE c.rarity = 'SSR') AS ultra_rare_count
		 FROM users u
		 LEFT JOIN user_cards uc ON uc.discord_id = u.discord_id
		 LEFT JOIN cards c ON c.id = uc.card_id
		 WHERE EXISTS (
		     SELECT 1 FROM sessions s
		     WHERE s.discord_id = u.discord_id AND s.expires_at > now()
		 )
		 GROUP BY u.discord_id, u.username, u.avatar, u.currency
		 ORDER BY u.discord_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query online users: %w", err)
	}
	defer rows.Close()

	var users []*model.OnlineUser
	for rows.Next() {
		u := &model.OnlineUser{}
		if err := rows.Scan(&u.DiscordID, &u.Username, &u.Avatar, &u.Currency,
			&u.Cards.Common, &u.Cards.Rare, &u.Cards.UltraRare); err != nil {
			return nil, fmt.Errorf("failed to scan online user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate online users: %w", err)
	}

	return users, nil
}

// compile-time interface check
var _ PresenceRepository = (*PostgresPresenceRepo)(nil)
