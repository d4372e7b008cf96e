package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ThreeSixtyGiving/Dashboard/internal/format"
	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
)

var (
	statsFilters filterFlags
	statsJSON    bool

	publishersFilters filterFlags
	publishersJSON    bool
	publishersLimit   int
)

type statsOutput struct {
	Publishers     int                 `json:"publishers"`
	Files          int                 `json:"files"`
	Grants         int                 `json:"grants"`
	Currencies     []string            `json:"currencies"`
	CurrencyTotals map[string]float64  `json:"currency_totals"`
	AwardYears     *registry.YearRange `json:"award_years,omitempty"`
	Malformed      int                 `json:"malformed_dates"`
	FromCache      bool                `json:"from_cache"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the registry",
	Long: `Print registry-wide totals for the files matching the filters.

Examples:
  registryctl stats
  registryctl stats --currency GBP --lastmodified 12month
  registryctl stats --json | jq .currency_totals`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := statsFilters.filters()
		if err != nil {
			return err
		}
		snap, err := loadRegistry(cmd.Context())
		if err != nil {
			return err
		}

		g := registry.GroupRecords(snap.Records, registry.ByPublisherName).
			Filter(filters.Predicates(time.Now())...)
		records := g.Records()
		out := statsOutput{
			Publishers:     g.Len(),
			Files:          len(records),
			Grants:         registry.TotalGrantCount(records),
			Currencies:     registry.DistinctCurrencies(g),
			CurrencyTotals: registry.CurrencyTotals(records),
			Malformed:      snap.Malformed,
			FromCache:      snap.FromCache,
		}
		if yr, ok := registry.AwardYearRange(records); ok {
			out.AwardYears = &yr
		}

		if statsJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		return printStats(cmd.OutOrStdout(), out)
	},
}

func printStats(w io.Writer, s statsOutput) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Publishers\t%s\n", format.Number(s.Publishers))
	fmt.Fprintf(tw, "Files\t%s\n", format.Number(s.Files))
	fmt.Fprintf(tw, "Grants\t%s\n", format.Number(s.Grants))
	if s.AwardYears != nil {
		fmt.Fprintf(tw, "Award years\t%d-%d\n", s.AwardYears.First, s.AwardYears.Last)
	}
	for _, code := range s.Currencies {
		fmt.Fprintf(tw, "Total %s\t%s\n", code, format.Currency(s.CurrencyTotals[code], code))
	}
	if s.Malformed > 0 {
		fmt.Fprintf(tw, "Malformed dates\t%s\n", format.Number(s.Malformed))
	}
	return tw.Flush()
}

type publisherOutput struct {
	Name           *string            `json:"name"`
	Prefix         string             `json:"prefix,omitempty"`
	Files          int                `json:"files"`
	Grants         int                `json:"grants"`
	CurrencyTotals map[string]float64 `json:"currency_totals"`
	LastModified   *time.Time         `json:"last_modified,omitempty"`
}

func newPublisherOutput(s registry.Summary) publisherOutput {
	out := publisherOutput{
		Prefix:         s.Publisher.Prefix,
		Files:          s.Files,
		Grants:         s.Grants,
		CurrencyTotals: s.CurrencyTotals,
	}
	if s.Key.Valid {
		name := s.Key.Value
		out.Name = &name
	}
	if s.LastModified.Valid {
		t := s.LastModified.Time
		out.LastModified = &t
	}
	return out
}

var publishersCmd = &cobra.Command{
	Use:   "publishers",
	Short: "List publishers with their totals",
	Long: `List the publishers matching the filters, largest first.

Examples:
  registryctl publishers --limit 20
  registryctl publishers --search trust --currency GBP
  registryctl publishers --json | jq '.[].name'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := publishersFilters.filters()
		if err != nil {
			return err
		}
		snap, err := loadRegistry(cmd.Context())
		if err != nil {
			return err
		}

		g := registry.GroupRecords(snap.Records, registry.ByPublisherName).
			Filter(filters.Predicates(time.Now())...)
		summaries := registry.SummarizeAll(g)
		sort.SliceStable(summaries, func(i, j int) bool {
			return summaries[i].Grants > summaries[j].Grants
		})
		if publishersLimit > 0 && len(summaries) > publishersLimit {
			summaries = summaries[:publishersLimit]
		}

		if publishersJSON {
			out := make([]publisherOutput, len(summaries))
			for i, sum := range summaries {
				out[i] = newPublisherOutput(sum)
			}
			return printJSON(cmd.OutOrStdout(), out)
		}
		return printPublishers(cmd.OutOrStdout(), summaries)
	},
}

func printPublishers(w io.Writer, summaries []registry.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBLISHER\tFILES\tGRANTS\tTOTALS\tLAST MODIFIED")
	for _, s := range summaries {
		codes := make([]string, 0, len(s.CurrencyTotals))
		for code := range s.CurrencyTotals {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		totals := make([]string, len(codes))
		for i, code := range codes {
			totals[i] = format.Currency(s.CurrencyTotals[code], code).String()
		}
		modified := "-"
		if s.LastModified.Valid {
			modified = format.Date(s.LastModified.Time)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			publisherName(s.Key),
			format.Number(s.Files),
			format.Number(s.Grants),
			strings.Join(totals, ", "),
			modified)
	}
	return tw.Flush()
}

func init() {
	statsFilters.register(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON")
	rootCmd.AddCommand(statsCmd)

	publishersFilters.register(publishersCmd)
	publishersCmd.Flags().BoolVar(&publishersJSON, "json", false, "print JSON")
	publishersCmd.Flags().IntVarP(&publishersLimit, "limit", "n", 0, "show at most n publishers (0 for all)")
	rootCmd.AddCommand(publishersCmd)
}

func publisherName(k registry.Key) string {
	if !k.Valid {
		return "(unnamed)"
	}
	return k.Value
}
