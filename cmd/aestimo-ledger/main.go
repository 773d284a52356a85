// aestimo-ledger inspects the run ledger and stored artifacts without
// touching the running service. The database is opened read-only, so it
// is safe to point at a live data directory.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
	storage "github.com/ternarybob/aestimo/internal/storage/badger"
)

var (
	dataDir = flag.String("data", "./data/aestimo", "Badger database directory")
	date    = flag.String("date", "", "Run date (YYYY-MM-DD)")
	slug    = flag.String("slug", "", "Article slug")
	version = flag.Int("version", 0, "Evidence pack version (0 = latest)")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: aestimo-ledger [flags] <command>

Commands:
  entries    list ledger entries for -date
  artifacts  list stored artifacts for -date
  pack       dump the evidence pack for -date -slug (latest or -version)
  report     dump the QA report for -date -slug
  verify     recompute pack hashes for -date and compare against the ledger
  stats      database size and key counts

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	log.DefaultLogger = log.Logger{
		Level:  log.InfoLevel,
		Writer: &log.ConsoleWriter{ColorOutput: true},
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	db, err := storage.NewReadOnlyBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: *dataDir})
	if err != nil {
		log.Fatal().Err(err).Str("data", *dataDir).Msg("Failed to open database")
	}
	defer db.Close()

	ledger := storage.NewLedgerStorage(db, arbor.NewLogger())
	artifacts := storage.NewArtifactStorage(db, arbor.NewLogger())
	ctx := context.Background()

	switch command {
	case "entries":
		err = listEntries(ctx, ledger)
	case "artifacts":
		err = listArtifacts(ctx, artifacts)
	case "pack":
		err = dumpPack(ctx, artifacts)
	case "report":
		err = dumpReport(ctx, artifacts)
	case "verify":
		err = verifyHashes(ctx, ledger, artifacts)
	case "stats":
		err = showStats(db)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}

func requireDate() error {
	if *date == "" {
		return fmt.Errorf("-date is required")
	}
	return nil
}

func requireDateSlug() error {
	if *date == "" || *slug == "" {
		return fmt.Errorf("-date and -slug are required")
	}
	return nil
}

func listEntries(ctx context.Context, ledger *storage.LedgerStorage) error {
	if err := requireDate(); err != nil {
		return err
	}

	entries, err := ledger.ListByDate(ctx, *date)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		log.Info().Str("date", *date).Msg("No ledger entries")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-40s  %-10s  email=%-5t  post=%-26s  hash=%s\n",
			e.Key, e.Status, e.EmailSent, e.ExternalPostID, short(e.ContentHash))
	}
	return nil
}

func listArtifacts(ctx context.Context, artifacts *storage.ArtifactStorage) error {
	if err := requireDate(); err != nil {
		return err
	}

	refs, err := artifacts.ListByDate(ctx, *date)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if r.Version > 0 {
			fmt.Printf("%-12s  %s  %s  v%d\n", r.Kind, r.Date, r.Slug, r.Version)
		} else {
			fmt.Printf("%-12s  %s  %s\n", r.Kind, r.Date, r.Slug)
		}
	}
	return nil
}

func dumpPack(ctx context.Context, artifacts *storage.ArtifactStorage) error {
	if err := requireDateSlug(); err != nil {
		return err
	}

	pack, err := loadPack(ctx, artifacts)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(pack, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func dumpReport(ctx context.Context, artifacts *storage.ArtifactStorage) error {
	if err := requireDateSlug(); err != nil {
		return err
	}

	report, err := artifacts.GetReport(ctx, *date, *slug)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// verifyHashes recomputes each stored pack's canonical hash and checks
// it against both the stored value and the ledger's content hash.
func verifyHashes(ctx context.Context, ledger *storage.LedgerStorage, artifacts *storage.ArtifactStorage) error {
	if err := requireDate(); err != nil {
		return err
	}

	entries, err := ledger.ListByDate(ctx, *date)
	if err != nil {
		return err
	}

	bad := 0
	for _, e := range entries {
		pack, err := artifacts.LatestPack(ctx, *date, e.ArticleSlug)
		if err != nil {
			log.Warn().Str("slug", e.ArticleSlug).Err(err).Msg("No pack on file")
			continue
		}

		recomputed, err := pack.CanonicalHash()
		if err != nil {
			return fmt.Errorf("hash %s: %w", e.ArticleSlug, err)
		}

		switch {
		case recomputed != pack.ContentHash:
			bad++
			log.Error().
				Str("slug", e.ArticleSlug).
				Str("stored", short(pack.ContentHash)).
				Str("recomputed", short(recomputed)).
				Msg("Pack hash mismatch")
		case e.ContentHash != "" && e.ContentHash != pack.ContentHash:
			bad++
			log.Error().
				Str("slug", e.ArticleSlug).
				Str("ledger", short(e.ContentHash)).
				Str("pack", short(pack.ContentHash)).
				Msg("Ledger references a different pack")
		default:
			log.Info().
				Str("slug", e.ArticleSlug).
				Str("hash", short(recomputed)).
				Msg("Pack verified")
		}
	}

	if bad > 0 {
		return fmt.Errorf("%d of %d packs failed verification", bad, len(entries))
	}
	return nil
}

func showStats(db *storage.BadgerDB) error {
	raw := db.Store().Badger()

	lsm, vlog := raw.Size()
	counts := map[string]int{}

	err := raw.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			prefix := key
			if i := strings.IndexByte(key, ':'); i > 0 {
				prefix = key[:i]
			}
			counts[prefix]++
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("lsm=%d bytes, vlog=%d bytes\n", lsm, vlog)
	for prefix, n := range counts {
		fmt.Printf("%-40s %d\n", prefix, n)
	}
	return nil
}

func loadPack(ctx context.Context, artifacts *storage.ArtifactStorage) (*models.EvidencePack, error) {
	if *version > 0 {
		return artifacts.GetPack(ctx, *date, *slug, *version)
	}
	return artifacts.LatestPack(ctx, *date, *slug)
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
