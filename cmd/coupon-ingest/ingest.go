package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shopkart/internal/domain/coupon"
)

const bloomFPR = 0.001

// Columns of a coupon CSV row. A leading header row is skipped.
const (
	colCode = iota
	colType
	colValue
	colMinOrder
	colMaxDiscount
	colValidUntil
	colUsageLimit
	numColumns
)

// RowError describes a rejected CSV row.
type RowError struct {
	File string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error { return e.Err }

// fileResult is the parsed content of one file in row order.
type fileResult struct {
	coupons []coupon.Coupon
	bad     []RowError
	// filter holds every code of the file.
	filter *bloom.BloomFilter
	// repeats holds codes the filter had already seen while being built:
	// within-file duplicates plus false positives.
	repeats map[string]struct{}
}

// index builds the per-file filter. Called once per file in the parse
// errgroup.
func (r *fileResult) index() {
	r.filter = bloom.NewWithEstimates(uint(max(len(r.coupons), 1)), bloomFPR)
	r.repeats = make(map[string]struct{})
	for _, c := range r.coupons {
		if r.filter.TestAndAddString(c.Code) {
			r.repeats[c.Code] = struct{}{}
		}
	}
}

// Stats summarizes an ingest run.
type Stats struct {
	Rows       int
	Unique     int
	Duplicates int
	Invalid    int
	// Candidates is the number of rows that needed an exact check.
	Candidates int
}

// parseFiles reads all files concurrently.
func parseFiles(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := parseGzFile(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			res.index()
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseGzFile(ctx context.Context, path string) (fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fileResult{}, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	return parseCSV(ctx, path, gz)
}

func parseCSV(ctx context.Context, name string, r io.Reader) (fileResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var res fileResult
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, errors.Wrap(err, "read csv")
		}
		if first && strings.EqualFold(strings.TrimSpace(record[0]), "code") {
			continue
		}
		c, err := parseRecord(record)
		if err != nil {
			line, _ := cr.FieldPos(0)
			res.bad = append(res.bad, RowError{File: name, Line: line, Err: err})
			continue
		}
		res.coupons = append(res.coupons, c)
	}
}

func parseRecord(record []string) (coupon.Coupon, error) {
	if len(record) < numColumns {
		return coupon.Coupon{}, errors.Errorf("expected %d columns, got %d", numColumns, len(record))
	}
	field := func(i int) string { return strings.TrimSpace(record[i]) }

	c := coupon.Coupon{
		Code:     coupon.NormalizeCode(field(colCode)),
		IsActive: true,
	}
	if c.Code == "" {
		return c, errors.New("empty code")
	}

	typ, err := coupon.ParseDiscountType(field(colType))
	if err != nil {
		return c, err
	}
	c.DiscountType = typ

	value, err := decimal.NewFromString(field(colValue))
	if err != nil || !value.IsPositive() {
		return c, errors.Errorf("invalid value %q", field(colValue))
	}
	if typ == coupon.DiscountPercent && value.GreaterThan(decimal.NewFromInt(100)) {
		return c, errors.Errorf("percentage %s exceeds 100", value)
	}
	c.Value = decimal.NewNullDecimal(value)

	if raw := field(colMinOrder); raw != "" {
		if c.MinOrderValue, err = decimal.NewFromString(raw); err != nil || c.MinOrderValue.IsNegative() {
			return c, errors.Errorf("invalid min order %q", raw)
		}
	}
	if raw := field(colMaxDiscount); raw != "" && typ == coupon.DiscountPercent {
		v, err := decimal.NewFromString(raw)
		if err != nil || !v.IsPositive() {
			return c, errors.Errorf("invalid max discount %q", raw)
		}
		c.MaxDiscount = decimal.NewNullDecimal(v)
	}
	if raw := field(colValidUntil); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return c, err
		}
		c.ValidUntil = &t
	}
	if raw := field(colUsageLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c, errors.Errorf("invalid usage limit %q", raw)
		}
		c.UsageLimit = &n
	}
	return c, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid valid_until %q", raw)
}

// dedupe keeps the first occurrence of every code across results in file
// order. A code that no other file's filter reports and that did not repeat
// inside its own file is unique and skips the exact check; only the
// remaining candidates are tracked in the seen set.
func dedupe(results []fileResult) ([]coupon.Coupon, Stats) {
	var (
		stats Stats
		out   []coupon.Coupon
		seen  = make(map[string]struct{})
	)
	for i, res := range results {
		stats.Rows += len(res.coupons) + len(res.bad)
		stats.Invalid += len(res.bad)
		for _, c := range res.coupons {
			if !candidate(results, i, c.Code) {
				out = append(out, c)
				continue
			}
			stats.Candidates++
			if _, dup := seen[c.Code]; dup {
				stats.Duplicates++
				continue
			}
			seen[c.Code] = struct{}{}
			out = append(out, c)
		}
	}
	stats.Unique = len(out)
	return out, stats
}

// candidate reports whether code may occur more than once across results.
func candidate(results []fileResult, file int, code string) bool {
	if _, ok := results[file].repeats[code]; ok {
		return true
	}
	for j, other := range results {
		if j != file && other.filter.TestString(code) {
			return true
		}
	}
	return false
}
