package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/config"
	"github.com/mehtapradnyatama/appsampah/internal/supabase"
)

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Store, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		client := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.RequestTimeout)
		return NewSupabaseStore(client, logger), nil
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN, logger)
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
