package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tiffin/internal/domain/auth"
	"github.com/xenking/tiffin/internal/domain/catalog"
	"github.com/xenking/tiffin/internal/domain/promotion"
	"github.com/xenking/tiffin/internal/storage/postgres"
)

type itemJSON struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Vegetarian  bool     `json:"vegetarian"`
	Options     []string `json:"options"`
	Image       string   `json:"image"`
}

type vendorJSON struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Image           string          `json:"image"`
	Rating          decimal.Decimal `json:"rating"`
	DeliveryMinutes int             `json:"deliveryMinutes"`
	PriceForTwo     int64           `json:"priceForTwo"`
	Cuisines        []string        `json:"cuisines"`
	Offer           string          `json:"offer"`
	Promoted        bool            `json:"promoted"`
	Vegetarian      bool            `json:"vegetarian"`
	JainAvailable   bool            `json:"jainAvailable"`
	Menu            []itemJSON      `json:"menu"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
		accountID    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to vendors and menus JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or TIFFIN_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TIFFIN_API_KEY_PEPPER env)")
	flag.StringVar(&accountID, "account-id", "demo", "account the seeded API key belongs to")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("TIFFIN_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or TIFFIN_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TIFFIN_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper, accountID); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper, accountID string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, postgres.NewCatalogRepository(pool), catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedPromotions(ctx, postgres.NewPromotionRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper, accountID); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, repo *postgres.CatalogRepository, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var vendors []vendorJSON
	if err := json.Unmarshal(data, &vendors); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting vendors", slog.Int("count", len(vendors)))

	for _, v := range vendors {
		if err := repo.UpsertVendor(ctx, catalog.Vendor{
			ID:              v.ID,
			Name:            v.Name,
			Cuisines:        v.Cuisines,
			Rating:          v.Rating,
			DeliveryMinutes: v.DeliveryMinutes,
			PriceForTwo:     v.PriceForTwo,
			Offer:           v.Offer,
			Promoted:        v.Promoted,
			Vegetarian:      v.Vegetarian,
			JainAvailable:   v.JainAvailable,
			Image:           v.Image,
		}); err != nil {
			return errors.Wrapf(err, "upsert vendor %d", v.ID)
		}

		for _, it := range v.Menu {
			if err := repo.UpsertItem(ctx, catalog.Item{
				ID:          it.ID,
				VendorID:    v.ID,
				Name:        it.Name,
				Description: it.Description,
				UnitPrice:   it.Price,
				Vegetarian:  it.Vegetarian,
				Options:     it.Options,
				Image:       it.Image,
			}); err != nil {
				return errors.Wrapf(err, "upsert item %d", it.ID)
			}
		}

		slog.Info("upserted vendor",
			slog.Int64("id", v.ID),
			slog.String("name", v.Name),
			slog.Int("items", len(v.Menu)),
		)
	}

	return nil
}

func seedPromotions(ctx context.Context, repo *postgres.PromotionRepository) error {
	slog.Info("seeding promotions")

	rules := []promotion.Rule{
		{
			Code:        "WELCOME50",
			Kind:        promotion.KindPercentageCapped,
			Percentage:  decimal.NewFromInt(50),
			Cap:         100,
			Description: "50% off up to ₹1",
		},
		{
			Code:                "NEWUSER50",
			Kind:                promotion.KindFlatPercentage,
			Percentage:          decimal.NewFromInt(50),
			SingleUsePerAccount: true,
			Description:         "50% off your first order",
		},
		{
			Code:        "FREEDEL",
			Kind:        promotion.KindFreeDelivery,
			MinSubtotal: 149,
			Description: "Free delivery above ₹1.49",
		},
		{
			Code:        "PIZZA20",
			Kind:        promotion.KindFlatPercentage,
			Percentage:  decimal.NewFromInt(20),
			Description: "20% off entire order",
		},
	}

	for _, r := range rules {
		if err := repo.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", r.Code)
		}

		slog.Info("upserted promotion", slog.String("code", r.Code), slog.String("description", r.Description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper, accountID string) error {
	slog.Info("seeding default API key")

	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:        "default",
		KeyHash:   hex.EncodeToString(auth.HashKey([]byte(pepper), apiKey)),
		Name:      "Default test key",
		AccountID: accountID,
		Scopes:    []string{"orders:write"},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("account_id", accountID))

	return nil
}
