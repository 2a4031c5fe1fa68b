package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/observability"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/prescriptions"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/reorder"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/supply"
)

// Services holds the domain services shared by the server, the worker and the CLI.
type Services struct {
	Catalog       *catalog.Service
	Inventory     *inventory.Service
	Prescriptions *prescriptions.Service
	Supply        *supply.Service
	Reorder       *reorder.Service
	Idempotency   *shared.IdempotencyStore
}

// BuildServices wires every domain service against Postgres and redis. A nil redis
// client disables the reorder cache; a nil metrics value disables domain counters.
func BuildServices(cfg *Config, pool *pgxpool.Pool, rdb *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	audit := shared.NewAuditLogger(pool)
	idem := shared.NewIdempotencyStore(pool)

	var reorderCache *reorder.Cache
	if rdb != nil {
		reorderCache = reorder.NewCache(rdb, cfg.ReorderCacheTTL)
	}

	catalogService := catalog.NewService(catalog.NewRepository(pool), audit, logger)
	reorderService := reorder.NewService(catalogService, reorderCache, logger)
	catalogService.OnChange(reorderService)

	var (
		invMetrics    inventory.MetricsPort
		rxMetrics     prescriptions.MetricsPort
		supplyMetrics supply.MetricsPort
	)
	if metrics != nil {
		invMetrics, rxMetrics, supplyMetrics = metrics, metrics, metrics
	}
	inventoryService := inventory.NewService(inventory.NewRepository(pool), audit, idem, inventory.ServiceConfig{
		MaxAttempts:     cfg.AllocationMaxAttempts,
		UnmatchedPolicy: inventory.UnmatchedPolicy(cfg.DispenseUnmatchedPolicy),
		Metrics:         invMetrics,
		Logger:          logger,
	}, reorderService)

	return &Services{
		Catalog:       catalogService,
		Inventory:     inventoryService,
		Prescriptions: prescriptions.NewService(prescriptions.NewRepository(pool), inventoryService, audit, rxMetrics, logger),
		Supply:        supply.NewService(supply.NewRepository(pool), audit, supplyMetrics, logger),
		Reorder:       reorderService,
		Idempotency:   idem,
	}
}
