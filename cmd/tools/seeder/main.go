// Command seeder writes demo session snapshots to Redis so QA can open a
// storefront with a known cart by sending the matching X-Session-ID.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/app"
	"github.com/noah-isme/toko-storefront/internal/config"
)

type line struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

type demoSession struct {
	ID       string
	Lines    []line
	Promo    string
	Shipping string
	Wishlist []string
}

var demoSessions = []demoSession{
	{ID: "demo-empty"},
	{
		ID:    "demo-below-threshold",
		Lines: []line{{ProductID: "p-003", Quantity: 2, Size: "M", Color: "Navy"}, {ProductID: "p-009", Quantity: 1, Size: "L/XL"}},
	},
	{
		ID:    "demo-free-shipping",
		Lines: []line{{ProductID: "p-002", Quantity: 1, Size: "10", Color: "Olive"}},
	},
	{
		ID:       "demo-promo-express",
		Lines:    []line{{ProductID: "p-004", Quantity: 1, Size: "M", Color: "Forest"}, {ProductID: "p-010", Quantity: 1}},
		Promo:    "SAVE10",
		Shipping: "express",
	},
	{
		ID:       "demo-wishlist",
		Lines:    []line{{ProductID: "p-012", Quantity: 1}},
		Wishlist: []string{"p-016", "p-008", "p-011"},
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps, err := app.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		log.Fatalf("Failed to initialise dependencies: %v", err)
	}
	defer deps.Close()

	for _, demo := range demoSessions {
		if err := seed(ctx, deps, demo); err != nil {
			log.Printf("Failed to seed %s: %v", demo.ID, err)
			continue
		}
	}
	log.Println("Seeding completed successfully!")
}

func seed(ctx context.Context, deps *app.Dependencies, demo demoSession) error {
	s, err := deps.Sessions.Get(ctx, demo.ID)
	if err != nil {
		return err
	}
	s.Cart.Clear()
	s.Wishlist.Clear()

	for _, l := range demo.Lines {
		candidate, err := deps.Catalog.Candidate(l.ProductID, l.Quantity, l.Size, l.Color)
		if err != nil {
			return fmt.Errorf("candidate %s: %w", l.ProductID, err)
		}
		if _, err := s.Cart.AddItem(candidate); err != nil {
			return fmt.Errorf("add %s: %w", l.ProductID, err)
		}
	}
	if demo.Promo != "" {
		if res := s.Cart.ApplyPromoCode(ctx, demo.Promo); !res.Applied {
			return fmt.Errorf("promo %s: %s", demo.Promo, res.Reason)
		}
	}
	if demo.Shipping != "" {
		if _, ok := s.Cart.SetShippingOption(demo.Shipping); !ok {
			return fmt.Errorf("unknown shipping method %s", demo.Shipping)
		}
	}
	for _, id := range demo.Wishlist {
		s.Wishlist.Add(id)
	}
	if err := deps.Sessions.Save(ctx, demo.ID); err != nil {
		return err
	}

	totals := s.Cart.Totals()
	fmt.Printf("Seeded %-22s items=%d total=%s wishlist=%d\n", demo.ID, totals.ItemCount, totals.Total.StringFixed(2), s.Wishlist.Count())
	return nil
}
