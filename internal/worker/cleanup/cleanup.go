// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// defaultInterval はスイープの実行間隔のデフォルト値。
const defaultInterval = 24 * time.Hour

// SessionSweeper は期限切れセッションの一括削除インターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SweepObserver は削除件数のメトリクス記録インターフェース。
type SweepObserver interface {
	RecordSessionsCleaned(count int64)
}

// Job は期限切れセッションのスイープジョブ。
// セッションの期限切れ判定自体は参照時の遅延削除で担保されるため、
// このジョブは再ログインしなかったユーザーの残骸レコードを回収する役割を持つ。
type Job struct {
	sweeper  SessionSweeper
	logger   *slog.Logger
	interval time.Duration
	observer SweepObserver
}

// NewJob はスイープジョブを生成する。intervalが0以下の場合は24時間になる。
func NewJob(sweeper SessionSweeper, logger *slog.Logger, interval time.Duration) *Job {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Job{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
	}
}

// SetObserver は削除件数のメトリクス記録先を設定する。
func (j *Job) SetObserver(observer SweepObserver) {
	j.observer = observer
}

// Run は起動時に1回スイープを実行し、以降はinterval間隔で繰り返す。
// コンテキストのキャンセルで停止する。
func (j *Job) Run(ctx context.Context) {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-ctx.Done():
			j.logger.Info("session cleanup job stopped")
			return
		}
	}
}

// Sweep は期限切れセッションを1回だけ削除する。削除件数を返す。
func (j *Job) Sweep(ctx context.Context) (int64, error) {
	count, err := j.sweeper.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if j.observer != nil {
		j.observer.RecordSessionsCleaned(count)
	}
	return count, nil
}

func (j *Job) sweep(ctx context.Context) {
	count, err := j.Sweep(ctx)
	if err != nil {
		j.logger.Error("failed to sweep expired sessions",
			slog.String("error", err.Error()),
		)
		return
	}

	j.logger.Info("expired sessions swept",
		slog.Int64("deleted", count),
	)
}
