package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cli"
	"github.com/ThreeSixtyGiving/Dashboard/internal/config"
	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
)

var (
	version = "dev"

	registryURL string
	verbose     bool

	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:     "registryctl",
	Short:   "Inspect the 360Giving registry feed",
	Long:    `Download, summarise and refresh the 360Giving data registry used by the dashboard.`,
	Version: version,
	// Usage is noise once arguments parsed.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cli.LoadEnvFile()
		c, err := cli.LoadAndValidateConfig()
		if err != nil {
			return err
		}
		if registryURL != "" {
			c.RegistryURL = registryURL
		}
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		cfg = c
		// Logs go to stderr so command output can be piped.
		logger = log.New(log.Config{
			Level:     level,
			Format:    c.LogFormat,
			Component: log.ComponentCLI,
			Output:    os.Stderr,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryURL, "url", "",
		"registry feed URL (default: REGISTRY_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log fetches and cache lookups to stderr")
}

// filterFlags are the dashboard filters as command line flags.
type filterFlags struct {
	search       string
	licences     []string
	currencies   []string
	fileTypes    []string
	fields       []string
	lastModified string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "publisher name contains (case-insensitive)")
	cmd.Flags().StringArrayVar(&f.licences, "licence", nil, "licence URL (repeatable)")
	cmd.Flags().StringSliceVar(&f.currencies, "currency", nil, "currency code (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&f.fileTypes, "filetype", nil, "file type such as json, xlsx or csv")
	cmd.Flags().StringSliceVar(&f.fields, "fields", nil, "coverage field path")
	cmd.Flags().StringVar(&f.lastModified, "lastmodified", "all", "last modified window: all, lastmonth, 6month, 12month")
}

func (f *filterFlags) filters() (registry.Filters, error) {
	window, err := registry.ParseWindow(f.lastModified)
	if err != nil {
		return registry.Filters{}, err
	}
	currencies := make([]string, len(f.currencies))
	for i, c := range f.currencies {
		currencies[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	return registry.Filters{
		Search:       strings.TrimSpace(f.search),
		Licence:      f.licences,
		Currency:     currencies,
		FileType:     f.fileTypes,
		Fields:       f.fields,
		LastModified: window,
	}, nil
}

// loadRegistry fetches the registry through the configured response
// cache, so a shared backend answers without downloading.
func loadRegistry(ctx context.Context) (*feed.Snapshot, error) {
	fetcher, be, err := cli.InitFeed(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	defer be.Close()
	return fetcher.Fetch(ctx)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
