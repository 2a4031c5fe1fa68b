// Command seed loads a demo pharmacy: a small reference catalog plus one batch per drug.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/app"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

//go:embed reference.json
var reference []byte

func main() {
	pharmacyID := getenv("SEED_PHARMACY_ID", "demo-pharmacy")
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := shared.ContextWithPrincipal(context.Background(), shared.Principal{
		ActorID:    "seed",
		PharmacyID: pharmacyID,
		Role:       shared.RoleOwner,
	})

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	services := app.BuildServices(cfg, pool, nil, nil, app.NewLogger(cfg))

	refs, err := catalog.LoadReference(bytes.NewReader(reference))
	if err != nil {
		log.Fatalf("parse reference list: %v", err)
	}
	fmt.Println("→ Seeding catalog...")
	report, err := services.Catalog.SeedFromReference(ctx, pharmacyID, refs)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	fmt.Printf("  created=%d skipped=%d\n", report.Created, report.Skipped)

	fmt.Println("→ Receiving demo batches...")
	expiry := time.Now().UTC().AddDate(1, 0, 0).Truncate(24 * time.Hour)
	for i, drug := range report.Drugs {
		_, err := services.Inventory.Receive(ctx, inventory.ReceiveInput{
			PharmacyID:   pharmacyID,
			DrugID:       drug.ID,
			BatchNumber:  fmt.Sprintf("DEMO-%03d", i+1),
			Quantity:     int64(20 + 5*(i%4)),
			CostPrice:    decimal.NewFromInt(2),
			SellingPrice: decimal.NewFromInt(5),
			ExpiryDate:   expiry.AddDate(0, i%6, 0),
			Supplier:     "Demo Wholesale",
		})
		if err != nil {
			log.Fatalf("receive %s: %v", drug.DisplayName(), err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
