package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tiffin/internal/domain/promotion"
	"github.com/xenking/tiffin/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 5_000_000
	minCodeLen    = 5
	maxCodeLen    = 12
	batchSize     = 500
)

// knownRules overrides the default rule for campaign codes.
var knownRules = map[string]promotion.Rule{
	"WELCOME50": {Kind: promotion.KindPercentageCapped, Percentage: decimal.NewFromInt(50), Cap: 100, Description: "50% off up to ₹1"},
	"NEWUSER50": {Kind: promotion.KindFlatPercentage, Percentage: decimal.NewFromInt(50), SingleUsePerAccount: true, Description: "50% off your first order"},
	"FREEDEL":   {Kind: promotion.KindFreeDelivery, MinSubtotal: 149, Description: "Free delivery above ₹1.49"},
	"PIZZA20":   {Kind: promotion.KindFlatPercentage, Percentage: decimal.NewFromInt(20), Description: "20% off entire order"},
	"FESTIVE25": {Kind: promotion.KindPercentageCapped, Percentage: decimal.NewFromInt(25), Cap: 15000, Description: "25% off up to ₹150"},
}

var defaultRule = promotion.Rule{
	Kind:        promotion.KindFlatPercentage,
	Percentage:  decimal.NewFromInt(10),
	Description: "Partner code: 10% off",
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		minFiles    int
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzip-compressed code lists")
	flag.StringVar(&pattern, "pattern", "promobase*.gz", "glob matching code list files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&minFiles, "min-files", 2, "number of files a code must appear in to be accepted")
	flag.UintVar(&capacity, "capacity", 50_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, minFiles, capacity); err != nil {
		slog.Error("promotion ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promotion ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, minFiles int, capacity uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "match code files")
	}
	if len(files) < minFiles {
		return errors.Errorf("need at least %d code files, found %d", minFiles, len(files))
	}
	if len(files) > bits.UintSize {
		return errors.Errorf("at most %d code files supported, found %d", bits.UintSize, len(files))
	}
	slices.Sort(files)

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes shared between files")

	codes, err := findValidCodes(ctx, files, filters, minFiles)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no valid codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := writePromotions(ctx, postgres.NewPromotionRepository(pool), codes); err != nil {
		return errors.Wrap(err, "write promotions to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, f, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", f), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("file", f), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findValidCodes re-streams each file, keeping codes whose presence across
// all filters reaches minFiles. Bloom false positives are removed by merging
// the exact per-file bitmasks before counting.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFiles int) ([]string, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)

			if err := streamGzFile(ctx, f, func(code string) {
				seen := 1
				for j, other := range filters {
					if j != i && other.TestString(code) {
						seen++
					}
				}
				if seen >= minFiles {
					candidates[code] |= fileBit
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for candidates", f)
			}

			slog.Info("pass 2 complete", slog.String("file", f), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minFiles {
			valid = append(valid, code)
		}
	}
	slices.Sort(valid)
	return valid, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each code that
// survives normalization and the length bounds.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := promotion.NormalizeCode(scanner.Text())
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// ruleFor returns the rule stored for code.
func ruleFor(code string) promotion.Rule {
	r, ok := knownRules[code]
	if !ok {
		r = defaultRule
	}
	r.Code = code
	return r
}

// writePromotions upserts codes in batches.
func writePromotions(ctx context.Context, repo *postgres.PromotionRepository, codes []string) error {
	slog.Info("writing promotions to database", slog.Int("count", len(codes)))

	written := 0
	for chunk := range slices.Chunk(codes, batchSize) {
		rules := make([]promotion.Rule, 0, len(chunk))
		for _, code := range chunk {
			rules = append(rules, ruleFor(code))
		}
		if err := repo.UpsertBatch(ctx, rules); err != nil {
			return errors.Wrapf(err, "upsert batch starting at %s", chunk[0])
		}
		written += len(rules)
		slog.Info("write progress", slog.Int("written", written), slog.Int("total", len(codes)))
	}

	return nil
}
