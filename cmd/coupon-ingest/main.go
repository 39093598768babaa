// Command coupon-ingest bulk-loads coupons from gzip-compressed CSV files.
//
// Each row is code,type,value,min_order,max_discount,valid_until,usage_limit.
// Codes are normalized and the first occurrence across files wins; existing
// coupons with the same code are overwritten.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/shopkart/internal/domain/coupon"
	"github.com/xenking/shopkart/internal/storage/postgres"
)

const batchSize = 500

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		dryRun      bool
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing coupon files")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "file name pattern inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and report without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" && !dryRun {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, filepath.Join(dataDir, pattern), databaseURL, dryRun)
	})
}

func run(ctx context.Context, lg *zap.Logger, glob, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "glob")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", glob)
	}
	sort.Strings(files)
	lg.Info("Parsing coupon files", zap.Strings("files", files))

	results, err := parseFiles(ctx, files)
	if err != nil {
		return err
	}
	for _, res := range results {
		for _, bad := range res.bad {
			lg.Warn("Skipping row", zap.String("file", bad.File), zap.Int("line", bad.Line), zap.Error(bad.Err))
		}
	}

	coupons, stats := dedupe(results)
	lg.Info("Parsed coupons",
		zap.Int("rows", stats.Rows),
		zap.Int("unique", stats.Unique),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("invalid", stats.Invalid),
		zap.Int("candidates", stats.Candidates),
	)
	if dryRun || len(coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return writeCoupons(ctx, lg, postgres.NewCouponRepository(pool), coupons)
}

type batchUpserter interface {
	UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error
}

func writeCoupons(ctx context.Context, lg *zap.Logger, repo batchUpserter, coupons []coupon.Coupon) error {
	for start := 0; start < len(coupons); start += batchSize {
		end := min(start+batchSize, len(coupons))
		if err := repo.UpsertBatch(ctx, coupons[start:end]); err != nil {
			return errors.Wrapf(err, "upsert coupons %d-%d", start, end)
		}
		lg.Info("Write progress", zap.Int("written", end), zap.Int("total", len(coupons)))
	}
	return nil
}
