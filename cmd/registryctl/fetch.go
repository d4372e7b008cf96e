package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/format"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
)

var fetchOut string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the registry feed to a local file",
	Long: `Download the registry status feed, check that it decodes and write it
pretty-printed to a file. Point REGISTRY_URL at the file to run the
dashboard offline.

Examples:
  registryctl fetch
  registryctl fetch --out /tmp/status.json
  registryctl fetch --url gs://datagetter-360giving-output/branch/master/status.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := feed.NewSource(ctx, cfg.RegistryURL, &http.Client{Timeout: cfg.RegistryFetchTimeout})
		if err != nil {
			return err
		}

		resp, err := src.Fetch(ctx)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &feed.FetchError{URL: src.URL(), StatusCode: resp.StatusCode, Err: feed.ErrUnexpectedStatus}
		}

		raw, skipped, err := core.DecodeRecords(resp.Body)
		if err != nil {
			return &feed.FetchError{URL: src.URL(), StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", feed.ErrDecode, err)}
		}

		var out bytes.Buffer
		if err := json.Indent(&out, resp.Body, "", "  "); err != nil {
			return fmt.Errorf("format feed: %w", err)
		}
		out.WriteByte('\n')

		if dir := filepath.Dir(fetchOut); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		if err := os.WriteFile(fetchOut, out.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", fetchOut, err)
		}

		for _, re := range skipped {
			logger.Warn("Undecodable record in feed", log.FieldRecordID, re.Identifier, "index", re.Index, log.FieldError, re.Err)
		}
		logger.Info("Registry feed saved", log.FieldURL, src.URL(), "path", fetchOut,
			log.FieldRecords, len(raw), log.FieldSkipped, len(skipped))
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s) to %s\n",
			format.Plural(len(raw), "file"), format.Bytes(out.Len()), fetchOut)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", filepath.Join("data", "status.json"), "output file")
	rootCmd.AddCommand(fetchCmd)
}
