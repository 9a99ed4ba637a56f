// Package storage persists pool snapshots and trade records for analytics
// and audit. The engine itself never reads from storage; writes are
// best-effort observability, not part of trade atomicity.
package storage

import (
	"context"

	"github.com/modelfoundry/modelamm/internal/storage/models"
)

type Storage interface {
	SaveSnapshot(ctx context.Context, snapshot *models.PoolSnapshot) error
	LatestSnapshot(ctx context.Context, modelID string) (*models.PoolSnapshot, error)

	SaveTrade(ctx context.Context, trade *models.TradeRecord) error
	ListTrades(ctx context.Context, modelID string, limit, offset int) ([]*models.TradeRecord, error)

	RunMigrations() error
	Close() error
}
