// Command catalog-ingest bulk loads foods from gzip-compressed NDJSON files.
//
// Food names are unique across the catalog. Files are scanned twice: the first
// pass builds one bloom filter per file and collects names that may repeat,
// the second pass keeps the first food per suspect name and drops the rest.
// Only suspects are tracked exactly, so memory stays bounded by the filters.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-orders/internal/domain/catalog"
	"github.com/xenking/food-orders/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

type foodLine struct {
	ID                 string          `json:"id"`
	RestaurantID       string          `json:"restaurantId"`
	Name               string          `json:"name"`
	Ingredients        string          `json:"ingredients"`
	Category           string          `json:"category"`
	Image              string          `json:"image"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
}

var hundred = decimal.NewFromInt(100)

// parseFood decodes one NDJSON line.
func parseFood(line []byte) (catalog.Food, error) {
	var l foodLine
	if err := json.Unmarshal(line, &l); err != nil {
		return catalog.Food{}, errors.Wrap(err, "decode")
	}
	l.Name = strings.TrimSpace(l.Name)
	switch {
	case l.ID == "":
		return catalog.Food{}, errors.New("missing id")
	case l.RestaurantID == "":
		return catalog.Food{}, errors.Errorf("food %s: missing restaurantId", l.ID)
	case l.Name == "":
		return catalog.Food{}, errors.Errorf("food %s: missing name", l.ID)
	case l.Price.IsNegative():
		return catalog.Food{}, errors.Errorf("food %s: negative price", l.ID)
	case l.DiscountPercentage.IsNegative() || l.DiscountPercentage.GreaterThan(hundred):
		return catalog.Food{}, errors.Errorf("food %s: discount out of range", l.ID)
	}
	return catalog.Food{
		ID:                 l.ID,
		RestaurantID:       l.RestaurantID,
		Name:               l.Name,
		Ingredients:        l.Ingredients,
		Category:           l.Category,
		Image:              l.Image,
		Price:              l.Price,
		DiscountPercentage: l.DiscountPercentage,
	}, nil
}

// foodWriter is implemented by *repository.CatalogRepository.
type foodWriter interface {
	UpsertFoods(ctx context.Context, foods []catalog.Food) error
}

type stats struct {
	written    int
	duplicates int
	invalid    int
}

func main() {
	var (
		dataDir     string
		databaseURL string
		batchSize   int
		expected    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz food files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 500, "foods per upsert batch")
	flag.UintVar(&expected, "expected", 1_000_000, "expected foods per file, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize <= 0 {
		slog.Error("batch size must be positive")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, batchSize, expected); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, batchSize int, expected uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "list data files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.ndjson.gz files in %s", dataDir)
	}
	slices.Sort(files)

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	suspects, err := findSuspects(ctx, files, expected)
	if err != nil {
		return errors.Wrap(err, "find suspect names")
	}

	slog.Info("pass 1 complete", slog.Int("suspect_names", len(suspects)))
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st, err := ingest(ctx, files, suspects, repository.NewCatalogRepository(pool), batchSize)
	if err != nil {
		return errors.Wrap(err, "ingest foods")
	}

	slog.Info("pass 2 complete",
		slog.Int("written", st.written),
		slog.Int("duplicates", st.duplicates),
		slog.Int("invalid", st.invalid),
	)
	return nil
}

// findSuspects returns names that may occur more than once across files:
// names repeating inside one file's filter, plus names that test positive in
// another file's filter. False positives only cost an exact map entry.
func findSuspects(ctx context.Context, files []string, expected uint) (map[string]struct{}, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	local := make([][]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, bloomFPR)
			var repeats []string
			err := streamGzFile(gctx, path, func(line []byte) {
				f, err := parseFood(line)
				if err != nil {
					return
				}
				if filter.TestAndAddString(f.Name) {
					repeats = append(repeats, f.Name)
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i], local[i] = filter, repeats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		suspects = make(map[string]struct{})
	)
	for _, repeats := range local {
		for _, name := range repeats {
			suspects[name] = struct{}{}
		}
	}
	if len(files) == 1 {
		return suspects, nil
	}

	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			return streamGzFile(gctx, path, func(line []byte) {
				f, err := parseFood(line)
				if err != nil {
					return
				}
				for j, other := range filters {
					if j != i && other.TestString(f.Name) {
						mu.Lock()
						suspects[f.Name] = struct{}{}
						mu.Unlock()
						return
					}
				}
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return suspects, nil
}

// ingest streams files in order and upserts foods in batches. For a suspect
// name only the first food seen is kept.
func ingest(ctx context.Context, files []string, suspects map[string]struct{}, w foodWriter, batchSize int) (stats, error) {
	var (
		st    stats
		seen  = make(map[string]struct{}, len(suspects))
		batch = make([]catalog.Food, 0, batchSize)
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.UpsertFoods(ctx, batch); err != nil {
			return err
		}
		before := st.written
		st.written += len(batch)
		if st.written/progressEvery != before/progressEvery {
			slog.Info("write progress", slog.Int("written", st.written))
		}
		batch = batch[:0]
		return nil
	}

	for _, path := range files {
		var flushErr error
		err := streamGzFile(ctx, path, func(line []byte) {
			if flushErr != nil {
				return
			}
			f, err := parseFood(line)
			if err != nil {
				st.invalid++
				slog.Warn("skipping invalid line", slog.String("file", path), slog.String("error", err.Error()))
				return
			}
			if _, suspect := suspects[f.Name]; suspect {
				if _, dup := seen[f.Name]; dup {
					st.duplicates++
					return
				}
				seen[f.Name] = struct{}{}
			}
			batch = append(batch, f)
			if len(batch) == batchSize {
				flushErr = flush()
			}
		})
		if err != nil {
			return st, err
		}
		if flushErr != nil {
			return st, flushErr
		}
	}
	return st, flush()
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line. The line buffer is reused between calls.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
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
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if line := scanner.Bytes(); len(line) > 0 {
			fn(line)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
