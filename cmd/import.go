package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flavortown/enrich-cli/internal/fetcher"
	"github.com/flavortown/enrich-cli/internal/model"
	"github.com/flavortown/enrich-cli/internal/seed"
)

var (
	importSource string
	importFormat string
	importEntity string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a restaurant or episode seed file",
	Long:  "Loads a CSV or XLSX seed from a local path or an http/ftp URL and upserts the rows by slug.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		path, cleanup, err := localizeSource(ctx, importSource)
		if err != nil {
			return err
		}
		defer cleanup()

		var affected int64
		switch importEntity {
		case "restaurants":
			records, err := parseRestaurants(ctx, path)
			if err != nil {
				return err
			}
			affected, err = st.ImportRestaurants(ctx, records)
			if err != nil {
				return err
			}
			zap.L().Info("restaurants imported",
				zap.Int("parsed", len(records)),
				zap.Int64("affected", affected))
		case "episodes":
			records, err := parseEpisodes(ctx, path)
			if err != nil {
				return err
			}
			affected, err = st.ImportEpisodes(ctx, records)
			if err != nil {
				return err
			}
			zap.L().Info("episodes imported",
				zap.Int("parsed", len(records)),
				zap.Int64("affected", affected))
		default:
			return eris.Errorf("unknown entity %q (want restaurants or episodes)", importEntity)
		}

		return nil
	},
}

// localizeSource makes sure the seed exists on the local filesystem,
// downloading remote sources to a temp file first.
func localizeSource(ctx context.Context, source string) (string, func(), error) {
	noop := func() {}
	if !strings.Contains(source, "://") {
		if _, err := os.Stat(source); err != nil {
			return "", noop, eris.Wrapf(err, "seed file %s", source)
		}
		return source, noop, nil
	}

	f, err := fetcher.ForURL(source)
	if err != nil {
		return "", noop, err
	}

	dir, err := os.MkdirTemp("", "enrich-seed-")
	if err != nil {
		return "", noop, eris.Wrap(err, "create temp dir")
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "seed."+importFormat)
	n, err := f.DownloadToFile(ctx, source, path)
	if err != nil {
		cleanup()
		return "", noop, eris.Wrap(err, "download seed")
	}
	zap.L().Info("seed downloaded", zap.String("source", source), zap.Int64("bytes", n))
	return path, cleanup, nil
}

func openSeed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open seed %s", path)
	}
	return f, nil
}

func parseRestaurants(ctx context.Context, path string) ([]model.Restaurant, error) {
	switch importFormat {
	case "csv":
		f, err := openSeed(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return seed.RestaurantsFromCSV(ctx, f)
	case "xlsx":
		return seed.RestaurantsFromXLSX(path)
	default:
		return nil, eris.Errorf("unknown format %q (want csv or xlsx)", importFormat)
	}
}

func parseEpisodes(ctx context.Context, path string) ([]model.Episode, error) {
	switch importFormat {
	case "csv":
		f, err := openSeed(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return seed.EpisodesFromCSV(ctx, f)
	case "xlsx":
		return seed.EpisodesFromXLSX(path)
	default:
		return nil, eris.Errorf("unknown format %q (want csv or xlsx)", importFormat)
	}
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "seed path or URL (required)")
	importCmd.Flags().StringVar(&importFormat, "format", "csv", "seed format: csv or xlsx")
	importCmd.Flags().StringVar(&importEntity, "entity", "restaurants", "seed entity: restaurants or episodes")
	_ = importCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(importCmd)
}
