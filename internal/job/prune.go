package job

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

type Pruner interface {
	Prune(ctx context.Context, daysOld int) (int64, error)
}

// CachePrune removes cached answers older than DaysOld days.
type CachePrune struct {
	Cache   Pruner
	DaysOld int
}

func (CachePrune) Name() string {
	return "cache_prune"
}

func (j CachePrune) Run(ctx context.Context) error {
	removed, err := j.Cache.Prune(ctx, j.DaysOld)
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	logger.Info("Cache pruned", zap.Int64("removed", removed), zap.Int("days_old", j.DaysOld))
	return nil
}
