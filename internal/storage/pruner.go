package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPruneInterval is the time between verdict cache pruning runs.
const DefaultPruneInterval = time.Hour

// RunPruner deletes expired cached verdicts every interval until ctx is
// cancelled. It returns immediately when no TTL is configured.
func (s *SQLiteStore) RunPruner(ctx context.Context, interval time.Duration) {
	if s.verdictTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	log.Info().Dur("interval", interval).Dur("ttl", s.verdictTTL).Msg("starting verdict cache pruner")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("verdict cache pruner stopped")
			return
		case <-ticker.C:
			s.prune(ctx)
		}
	}
}

func (s *SQLiteStore) prune(ctx context.Context) {
	count, err := s.PruneVerdicts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to prune verdict cache")
		return
	}
	if count > 0 {
		log.Info().Int64("pruned", count).Msg("pruned expired verdicts")
	}
}
