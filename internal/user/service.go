// Package user はユーザー台帳のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bunny-plus/backend/internal/model"
	"github.com/bunny-plus/backend/internal/repository"
)

// Service はユーザー台帳のサービス層。
// 残高の条件付き減算とオンボーディング進捗の管理を提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// GetByDiscordID は指定IDのユーザーを取得する。
// 見つからない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	user, err := s.userRepo.FindByDiscordID(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// CompleteOnboarding はオンボーディング完了フラグを立てる。
// すでに完了済みでも成功として扱う（冪等）。
func (s *Service) CompleteOnboarding(ctx context.Context, discordID string) error {
	if err := s.userRepo.CompleteOnboarding(ctx, discordID); err != nil {
		return fmt.Errorf("オンボーディング状態の更新に失敗しました: %w", err)
	}

	slog.Info("onboarding completed", slog.String("discord_id", discordID))
	return nil
}

// SpendCurrency は残高の条件付き減算を行い、減算後のユーザーを返す。
// 検証と減算はリポジトリ層の単一UPDATE文で原子的に行われるため、
// 並行リクエストでも残高が負になることはない。
// 残高不足の場合はNOT_ENOUGH_CURRENCYを返し、残高は変更されない。
func (s *Service) SpendCurrency(ctx context.Context, discordID string, amount int) (*model.User, error) {
	if amount <= 0 {
		return nil, model.NewInvalidRequestError("消費量は1以上である必要があります")
	}

	user, err := s.userRepo.SpendCurrency(ctx, discordID, amount)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, model.NewUserNotFoundError()
		case errors.Is(err, repository.ErrInsufficientCurrency):
			return nil, model.NewNotEnoughCurrencyError()
		default:
			return nil, fmt.Errorf("残高の減算に失敗しました: %w", err)
		}
	}

	slog.Info("currency spent",
		slog.String("discord_id", discordID),
		slog.Int("amount", amount),
		slog.Int("remaining", user.Currency),
	)

	return user, nil
}
