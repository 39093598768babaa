// Command seed-db applies the schema and loads demo data: products, coupons,
// default store settings and an admin API key.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/db"
	"github.com/xenking/shopkart/internal/domain/auth"
	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/domain/product"
	"github.com/xenking/shopkart/internal/domain/settings"
	"github.com/xenking/shopkart/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to products JSON file (embedded demo catalog when empty)")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or SHOPKART_SEED_API_KEY env; generated when empty)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOPKART_API_KEY_PEPPER env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("SHOPKART_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("SHOPKART_API_KEY_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if opts.databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if err := run(ctx, lg, opts); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed")
		return nil
	})
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, pool, opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, pool, time.Now()); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedSettings(ctx, lg, pool); err != nil {
		return errors.Wrap(err, "seed settings")
	}
	if err := seedAPIKey(ctx, lg, pool, opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, path string) error {
	data := db.Products
	if path != "" {
		lg.Info("Reading products file", zap.String("path", path))
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	products, err := decodeProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	repo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Upserted products", zap.Int("count", len(products)))
	return nil
}

func decodeProducts(data []byte) ([]product.Product, error) {
	var products []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Str()
			case "title":
				p.Title, err = d.Str()
			case "description":
				p.Description, err = d.Str()
			case "price":
				var raw string
				if d.Next() == jx.String {
					raw, err = d.Str()
				} else {
					var n jx.Num
					n, err = d.Num()
					raw = n.String()
				}
				if err == nil {
					p.Price, err = decimal.NewFromString(raw)
				}
			case "category":
				p.Category, err = d.Str()
			case "image_url":
				p.ImageURL, err = d.Str()
			case "stock":
				p.Stock, err = d.Int()
			case "is_featured":
				p.IsFeatured, err = d.Bool()
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		})
		if err == nil && p.ID == "" {
			err = errors.New("product without id")
		}
		products = append(products, p)
		return err
	})
	return products, err
}

func demoCoupons(now time.Time) []coupon.Coupon {
	nextYear := now.AddDate(1, 0, 0).UTC()
	lastMonth := now.AddDate(0, -1, 0).UTC()
	limit := func(n int) *int { return &n }
	value := func(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromInt(v)) }

	return []coupon.Coupon{
		{
			Code:          "WELCOME20",
			DiscountType:  coupon.DiscountPercent,
			Value:         value(20),
			MinOrderValue: decimal.NewFromInt(500),
			MaxDiscount:   value(200),
			ValidUntil:    &nextYear,
			IsActive:      true,
		},
		{
			Code:          "FLAT100",
			DiscountType:  coupon.DiscountFixed,
			Value:         value(100),
			MinOrderValue: decimal.NewFromInt(999),
			ValidUntil:    &nextYear,
			IsActive:      true,
		},
		{
			Code:          "FIRST50",
			DiscountType:  coupon.DiscountPercent,
			Value:         value(50),
			MaxDiscount:   value(500),
			ValidUntil:    &nextYear,
			IsActive:      true,
			UsageLimit:    limit(100),
		},
		{
			Code:         "SUMMER10",
			DiscountType: coupon.DiscountPercent,
			Value:        value(10),
			ValidUntil:   &lastMonth,
			IsActive:     true,
		},
	}
}

func seedCoupons(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, now time.Time) error {
	coupons := demoCoupons(now)
	if err := postgres.NewCouponRepository(pool).UpsertBatch(ctx, coupons); err != nil {
		return err
	}
	for _, c := range coupons {
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("type", string(c.DiscountType)))
	}
	return nil
}

// seedSettings writes defaults for keys that have no value yet.
func seedSettings(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool) error {
	repo := postgres.NewSettingsRepository(pool)
	stored, err := repo.Load(ctx)
	if err != nil {
		return err
	}
	values := settings.FromMap(stored).ToMap()
	for k, v := range stored {
		values[k] = v
	}
	if err := repo.Save(ctx, values); err != nil {
		return err
	}
	lg.Info("Seeded settings", zap.Int("keys", len(values)))
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, key, pepper string) error {
	if key == "" {
		var err error
		if key, err = auth.GenerateKey(); err != nil {
			return err
		}
		lg.Warn("Generated admin API key, store it now", zap.String("api_key", key))
	}

	info := auth.APIKeyInfo{
		ID:      "admin",
		KeyHash: auth.Hash([]byte(pepper), key),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeOrders, auth.ScopeCoupons, auth.ScopeSettings},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}
	lg.Info("Upserted API key", zap.String("id", info.ID), zap.Strings("scopes", info.Scopes))
	return nil
}
