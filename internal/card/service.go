// Package card はガチャ抽選とカード管理のドメインロジックを提供する。
package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/bunny-plus/backend/internal/model"
	"github.com/bunny-plus/backend/internal/repository"
)

// レアリティ抽選の閾値（パーセント）。
// 0-100の一様乱数に対し、5%未満でSSR、25%未満でSR、それ以外はR。
const (
	ultraRareThreshold = 5.0
	rareThreshold      = 25.0
)

// PullResult はガチャ1回の結果を表す。
type PullResult struct {
	Card     *model.Card `json:"card"`
	Currency int         `json:"currency"` // 消費後の残高
}

// ServiceConfig はガチャサービスの設定。
type ServiceConfig struct {
	// PullCost はガチャ1回あたりの消費通貨量。
	PullCost int
}

// Service はガチャ抽選とカード照会のサービス層。
type Service struct {
	cardRepo repository.CardRepository
	userRepo repository.UserRepository
	config   ServiceConfig
	roll     func() float64 // 0-100の一様乱数。テスト用に差し替え可能。
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(cardRepo repository.CardRepository, userRepo repository.UserRepository, config ServiceConfig) *Service {
	if config.PullCost <= 0 {
		config.PullCost = 1
	}
	return &Service{
		cardRepo: cardRepo,
		userRepo: userRepo,
		config:   config,
		roll:     func() float64 { return rand.Float64() * 100 },
	}
}

// rollRarity はレアリティを抽選する。
func (s *Service) rollRarity() model.Rarity {
	r := s.roll()
	switch {
	case r < ultraRareThreshold:
		return model.RarityUltraRare
	case r < rareThreshold:
		return model.RarityRare
	default:
		return model.RarityCommon
	}
}

// Pull はガチャを1回実行する。
// レアリティを抽選したのち、「残高減算 → カード選択 → 所有レコード追記」を
// リポジトリ層の単一トランザクションで実行する。いずれかが失敗した場合も
// 通貨は消費されない。
func (s *Service) Pull(ctx context.Context, discordID string) (*PullResult, error) {
	rarity := s.rollRarity()

	card, err := s.cardRepo.Draw(ctx, discordID, s.config.PullCost, rarity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, model.NewUserNotFoundError()
		case errors.Is(err, repository.ErrInsufficientCurrency):
			return nil, model.NewNotEnoughCurrencyError()
		case errors.Is(err, repository.ErrEmptyRarityPool):
			slog.Error("card catalog has no cards for rolled rarity",
				slog.String("rarity", string(rarity)),
			)
			return nil, model.NewEmptyRarityPoolError(rarity)
		default:
			return nil, fmt.Errorf("ガチャの実行に失敗しました: %w", err)
		}
	}

	// 消費後の残高を取得してレスポンスに含める
	user, err := s.userRepo.FindByDiscordID(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("card pulled",
		slog.String("discord_id", discordID),
		slog.Int("card_id", card.ID),
		slog.String("rarity", string(card.Rarity)),
		slog.Int("remaining", user.Currency),
	)

	return &PullResult{Card: card, Currency: user.Currency}, nil
}

// GetUserCards はユーザーが排出したカードを取得順で返す。重複を含む。
// 1枚も持っていない場合は空スライスを返す。
func (s *Service) GetUserCards(ctx context.Context, discordID string) ([]*model.Card, error) {
	cards, err := s.cardRepo.ListByOwner(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("所有カードの取得に失敗しました: %w", err)
	}
	if cards == nil {
		cards = []*model.Card{}
	}
	return cards, nil
}

// GetCardByID はカタログからカードを取得する。
// 見つからない場合はCARD_NOT_FOUNDを返す。
func (s *Service) GetCardByID(ctx context.Context, cardID int) (*model.Card, error) {
	card, err := s.cardRepo.FindByID(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("カードの取得に失敗しました: %w", err)
	}
	if card == nil {
		return nil, model.NewCardNotFoundError(cardID)
	}
	return card, nil
}
