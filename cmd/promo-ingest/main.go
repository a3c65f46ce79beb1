// Command promo-ingest loads gzipped NDJSON promo rule feeds into the
// database. Each line is one rule:
//
//	{"code":"TERANGA10","discount_type":"percentage","value":"10","min_items":0,"description":"..."}
//
// Files are streamed concurrently; unknown discount types and malformed
// lines are counted and skipped, never fatal.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/terangacraft/marketplace/internal/domain/promo"
	"github.com/terangacraft/marketplace/internal/postgres"
)

const (
	batchSize     = 500
	progressEvery = 100_000
)

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("at least one feed file is required: promo-ingest [flags] feed.ndjson.gz ...")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewPromoRepository(pool)

	var loaded, skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(ingestFile(ctx, repo, f, &loaded, &skipped))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int64("loaded", loaded.Load()),
		slog.Int64("skipped", skipped.Load()),
	)
	return nil
}

func ingestFile(
	ctx context.Context,
	repo *postgres.PromoRepository,
	path string,
	loaded, skipped *atomic.Int64,
) func() error {
	return func() error {
		batch := make([]promo.Rule, 0, batchSize)
		var count int64

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := repo.UpsertBatch(ctx, batch); err != nil {
				return err
			}
			loaded.Add(int64(len(batch)))
			batch = batch[:0]
			return nil
		}

		if err := streamGzLines(ctx, path, func(line []byte) error {
			count++
			if count%progressEvery == 0 {
				slog.Info("ingest progress", slog.String("file", path), slog.Int64("lines", count))
			}

			rule, err := parseRule(line)
			if err != nil {
				skipped.Add(1)
				return nil
			}
			batch = append(batch, rule)
			if len(batch) == batchSize {
				return flush()
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "ingest %s", path)
		}

		if err := flush(); err != nil {
			return errors.Wrapf(err, "flush %s", path)
		}

		slog.Info("file complete", slog.String("file", path), slog.Int64("lines", count))
		return nil
	}
}

// parseRule decodes one NDJSON rule. Codes are normalized to uppercase; the
// value field is a decimal string so no precision is lost in transit.
func parseRule(line []byte) (promo.Rule, error) {
	var rule promo.Rule

	d := jx.DecodeBytes(line)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			s, err := d.Str()
			if err != nil {
				return err
			}
			rule.Code = strings.ToUpper(strings.TrimSpace(s))
			return nil
		case "discount_type":
			s, err := d.Str()
			if err != nil {
				return err
			}
			rule.DiscountType = promo.DiscountType(s)
			return nil
		case "value":
			s, err := d.Str()
			if err != nil {
				return err
			}
			v, err := decimal.NewFromString(s)
			if err != nil {
				return errors.Wrap(err, "parse value")
			}
			rule.Value = v
			return nil
		case "min_items":
			v, err := d.Int()
			if err != nil {
				return err
			}
			rule.MinItems = v
			return nil
		case "description":
			s, err := d.Str()
			if err != nil {
				return err
			}
			rule.Description = s
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return promo.Rule{}, err
	}

	if rule.Code == "" {
		return promo.Rule{}, errors.New("missing code")
	}
	switch rule.DiscountType {
	case promo.DiscountPercentage, promo.DiscountFixed, promo.DiscountFreeLowest:
	default:
		return promo.Rule{}, errors.Errorf("unknown discount type %q", rule.DiscountType)
	}
	return rule, nil
}

// streamGzLines opens a gzip-compressed file and calls fn for each non-empty
// line.
func streamGzLines(ctx context.Context, path string, fn func(line []byte) error) error {
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
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "scan %s", path)
}
