package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bunny-plus/backend/internal/model"
)

// PostgresCardRepo はPostgreSQLを使用したカードリポジトリ。
type PostgresCardRepo struct {
	db *sql.DB
}

// NewPostgresCardRepo はPostgresCardRepoを生成する。
func NewPostgresCardRepo(db *sql.DB) *PostgresCardRepo {
	return &PostgresCardRepo{db: db}
}

// FindByID は指定IDのカードを取得する。見つからない場合はnilを返す。
func (r *PostgresCardRepo) FindByID(ctx context.Context, id int) (*model.Card, error) {
	card := &model.Card{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, rarity, attack, defense, description, image_url
		 FROM cards WHERE id = $1`,
		id,
	).Scan(&card.ID, &card.Name, &card.Rarity, &card.Attack, &card.Defense, &card.Description, &card.ImageURL)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card: %w", err)
	}

	return card, nil
}

// Draw は残高減算・カード抽選・所有レコード追記を単一トランザクションで実行する。
//
// 実行順序:
//  1. 条件付きUPDATEで残高を減算（currency >= cost の検証込み）
//  2. 指定レアリティからORDER BY random()で1枚選択
//  3. user_cardsに所有レコードを追記
//
// いずれかが失敗した場合はロールバックされるため、減算だけが残ることはなく、
// 排出だけが残ることもない。
func (r *PostgresCardRepo) Draw(ctx context.Context, discordID string, cost int, rarity model.Rarity) (*model.Card, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 残高の条件付き減算
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET currency = currency - $2, updated_at = now()
		 WHERE discord_id = $1 AND currency >= $2`,
		discordID, cost,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to debit currency: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// ユーザー不在と残高不足を区別する
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE discord_id = $1)`,
			discordID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check user existence: %w", err)
		}
		if !exists {
			return nil, ErrUserNotFound
		}
		return nil, ErrInsufficientCurrency
	}

	// 2. レアリティ内の一様ランダム選択
	card := &model.Card{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, rarity, attack, defense, description, image_url
		 FROM cards WHERE rarity = $1
		 ORDER BY random() LIMIT 1`,
		string(rarity),
	).Scan(&card.ID, &card.Name, &card.Rarity, &card.Attack, &card.Defense, &card.Description, &card.ImageURL)
	if err == sql.ErrNoRows {
		// ロールバックにより減算は取り消される
		return nil, ErrEmptyRarityPool
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select card: %w", err)
	}

	// 3. 所有レコードの追記
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_cards (discord_id, card_id, acquired_at) VALUES ($1, $2, now())`,
		discordID, card.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ownership record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return card, nil
}

// ListByOwner はユーザーが排出したカードを取得時刻の昇順で返す。重複を含む。
func (r *PostgresCardRepo) ListByOwner(ctx context.Context, discordID string) ([]*model.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.rarity, c.attack, c.defense, c.description, c.image_url
		 FROM user_cards uc
		 JOIN cards c ON c.id = uc.card_id
		 WHERE uc.discord_id = $1
		 ORDER BY uc.acquired_at, uc.id`,
		discordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned cards: %w", err)
	}
	defer rows.Close()

	var cards []*model.Card
	for rows.Next() {
		card := &model.Card{}
		if err := rows.Scan(&card.ID, &card.Name, &card.Rarity, &card.Attack, &card.Defense, &card.Description, &card.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cards: %w", err)
	}

	return cards, nil
}

// UpsertCatalog はカードカタログを冪等に投入する。
// 既存IDは属性を上書きし、seedの再実行を安全にする。
func (r *PostgresCardRepo) UpsertCatalog(ctx context.Context, cards []*model.Card) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, card := range cards {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cards (id, name, rarity, attack, defense, description, image_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name, rarity = EXCLUDED.rarity,
			     attack = EXCLUDED.attack, defense = EXCLUDED.defense,
			     description = EXCLUDED.description, image_url = EXCLUDED.image_url`,
			card.ID, card.Name, string(card.Rarity), card.Attack, card.Defense, card.Description, card.ImageURL,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert card %d: %w", card.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// compile-time interface check
var _ CardRepository = (*PostgresCardRepo)(nil)
