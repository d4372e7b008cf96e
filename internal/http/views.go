package http

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/format"
	"github.com/ThreeSixtyGiving/Dashboard/internal/license"
	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
	"github.com/ThreeSixtyGiving/Dashboard/internal/treemap"
)

const unknownPublisher = "Unknown publisher"

type messageBox struct {
	Title   string
	Message string
	Error   bool
}

type windowOption struct {
	Value string
	Label string
}

var windowOptions = []windowOption{
	{string(registry.WindowAll), "Any time"},
	{string(registry.WindowLastMonth), "In the last month"},
	{string(registry.Window6Month), "In the last 6 months"},
	{string(registry.Window12Month), "In the last 12 months"},
}

// dataStatus describes the snapshot a page was rendered from.
type dataStatus struct {
	Records   int
	Malformed int
	FetchedAt core.NullTime
	FromCache bool
	Source    string
}

func statusOf(snap *feed.Snapshot) dataStatus {
	return dataStatus{
		Records:   len(snap.Records),
		Malformed: snap.Malformed,
		FetchedAt: core.At(snap.FetchedAt),
		FromCache: snap.FromCache,
		Source:    snap.URL,
	}
}

type dashboardPage struct {
	Title   string
	Options registry.Options
	Filters registry.Filters
	Windows []windowOption
	Metric  string
	Sort    string
	Status  dataStatus
	Message *messageBox
}

type summaryCard struct {
	Label string
	Value string
	Unit  string
}

type treemapView struct {
	Metric string
	Label  string
	Width  float64
	Height float64
	Rects  []treemap.Rect
}

type chartsView struct {
	Cards   []summaryCard
	Treemap treemapView
	Charts  []chartView
	Status  dataStatus
	Empty   bool
}

func buildCharts(g *registry.Grouping, params TreemapParams, currency string, status dataStatus) chartsView {
	records := g.Records()
	v := chartsView{Status: status, Empty: len(records) == 0}

	total := registry.CurrencyTotals(records)[currency]
	money := format.Currency(total, currency)
	v.Cards = []summaryCard{
		{Label: format.PluralWord(g.Len(), "Publisher"), Value: format.Number(g.Len())},
		{Label: format.PluralWord(len(records), "File"), Value: format.Number(len(records))},
		{Label: format.PluralWord(registry.TotalGrantCount(records), "Grant"), Value: format.Number(registry.TotalGrantCount(records))},
		{Label: "Total in " + currency, Value: money.Value, Unit: money.Unit},
		{Label: "Currencies", Value: format.Number(len(registry.DistinctCurrencies(g)))},
	}

	label := "by number of grants"
	if params.Metric.Currency != "" {
		label = "by grant amount (" + params.Metric.Currency + ")"
	}
	v.Treemap = treemapView{
		Metric: params.Metric.Name,
		Label:  label,
		Width:  params.Width,
		Height: params.Height,
		Rects:  treemap.Layout(treemap.FromGrouping(g, params.Metric), params.Width, params.Height),
	}

	v.Charts = []chartView{
		currencyChart(registry.UsageByCurrency(g)),
		yearsChart(registry.CoverageByYear(g)),
		grantCountChart(registry.GrantCounts(g)),
		issuedChart(registry.IssuedDates(g, currency)),
	}
	return v
}

type amountView struct {
	Currency string
	Money    format.Money
	Full     string
}

type publisherCard struct {
	Name         string
	Known        bool
	Prefix       string
	Website      string
	Logo         string
	Files        int
	Grants       int
	Amounts      []amountView
	AwardRange   string
	LastModified core.NullTime
	Licences     []license.Resolution
	Invalid      int
	Undownloaded int
	RecipientOrg int
	FundingOrg   int
	Coverage     []string
}

func amountsOf(totals map[string]float64, first string) []amountView {
	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if (codes[i] == first) != (codes[j] == first) {
			return codes[i] == first
		}
		return codes[i] < codes[j]
	})
	out := make([]amountView, len(codes))
	for i, code := range codes {
		out[i] = amountView{
			Currency: code,
			Money:    format.Currency(totals[code], code),
			Full:     format.CurrencyFull(totals[code], code),
		}
	}
	return out
}

func awardRangeLabel(yr registry.YearRange, ok bool) string {
	if !ok {
		return ""
	}
	if yr.First == yr.Last {
		return strconv.Itoa(yr.First)
	}
	return strconv.Itoa(yr.First) + " to " + strconv.Itoa(yr.Last)
}

func newPublisherCard(s registry.Summary, currency string) publisherCard {
	c := publisherCard{
		Name:         s.Key.Value,
		Known:        s.Key.Valid,
		Prefix:       s.Publisher.Prefix,
		Website:      s.Publisher.Website,
		Logo:         s.Publisher.Logo,
		Files:        s.Files,
		Grants:       s.Grants,
		Amounts:      amountsOf(s.CurrencyTotals, currency),
		AwardRange:   awardRangeLabel(s.AwardRange, s.HasAwardRange),
		LastModified: s.LastModified,
		Invalid:      s.InvalidFiles,
		Undownloaded: s.UndownloadedFiles,
		RecipientOrg: s.RecipientOrgs,
		FundingOrg:   s.FundingOrgs,
		Coverage:     s.CoverageFields,
	}
	if !c.Known {
		c.Name = unknownPublisher
	}
	for _, l := range s.Licences {
		c.Licences = append(c.Licences, license.Resolve(l.URL, l.Name))
	}
	return c
}

type publishersView struct {
	Cards  []publisherCard
	Sort   string
	Status dataStatus
}

func buildPublishers(g *registry.Grouping, order PublisherSort, currency string, status dataStatus) publishersView {
	summaries := registry.SummarizeAll(g)
	sortSummaries(summaries, order)
	v := publishersView{Sort: string(order), Status: status}
	for _, s := range summaries {
		v.Cards = append(v.Cards, newPublisherCard(s, currency))
	}
	return v
}

// sortSummaries orders summaries for display. Ties keep feed order and
// nameless publishers sort last by name.
func sortSummaries(summaries []registry.Summary, order PublisherSort) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		switch order {
		case SortByName:
			if a.Key.Valid != b.Key.Valid {
				return a.Key.Valid
			}
			return strings.ToLower(a.Key.Value) < strings.ToLower(b.Key.Value)
		case SortByModified:
			return b.LastModified.Before(a.LastModified) || (a.LastModified.Valid && !b.LastModified.Valid)
		default:
			return a.Grants > b.Grants
		}
	})
}

type fileRow struct {
	Identifier string
	Title      string
	FileType   string
	Grants     int
	Issued     core.NullTime
	Modified   core.NullTime
	Licence    license.Resolution
	Valid      string
}

func newFileRow(r core.Record) fileRow {
	return fileRow{
		Identifier: r.Identifier.String,
		Title:      r.Title,
		FileType:   r.Metadata.FileType,
		Grants:     r.Aggregates.Count,
		Issued:     r.Issued,
		Modified:   r.Modified,
		Licence:    license.Resolve(r.License.String, r.LicenseName),
		Valid:      r.Metadata.Valid.String(),
	}
}

type publisherPage struct {
	Title  string
	Card   publisherCard
	Files  []fileRow
	Status dataStatus
}

type currencyRow struct {
	Code  string
	Count int
	Total amountView
	Min   string
	Max   string
}

type coverageRow struct {
	Field    string
	Standard bool
	With     int
	Total    int
}

type filePage struct {
	Title        string
	Record       core.Record
	Publisher    string
	Licence      license.Resolution
	Download     core.Distribution
	HasDownload  bool
	Currencies   []currencyRow
	Coverage     []coverageRow
	Downloaded   core.NullTime
	Valid        string
	Downloads    string
	Acceptable   string
	Status       dataStatus
	StandardOnly int
}

func newFilePage(r core.Record, status dataStatus) filePage {
	p := filePage{
		Title:      r.Title,
		Record:     r,
		Publisher:  r.Publisher.Name.OrDefault(unknownPublisher),
		Licence:    license.Resolve(r.License.String, r.LicenseName),
		Downloaded: r.Metadata.DatetimeDownloaded,
		Valid:      r.Metadata.Valid.String(),
		Downloads:  r.Metadata.Downloads.String(),
		Acceptable: r.Metadata.AcceptableLicense.String(),
		Status:     status,
	}
	if p.Title == "" {
		p.Title = r.Identifier.OrDefault("Untitled file")
	}
	p.Download, p.HasDownload = r.FirstDistribution()

	for _, code := range r.CurrencyCodes() {
		c := r.Aggregates.Currencies[code]
		p.Currencies = append(p.Currencies, currencyRow{
			Code:  code,
			Count: c.Count,
			Total: amountView{Currency: code, Money: format.Currency(c.TotalAmount, code), Full: format.CurrencyFull(c.TotalAmount, code)},
			Min:   format.CurrencyFull(c.MinAmount, code),
			Max:   format.CurrencyFull(c.MaxAmount, code),
		})
	}
	for _, name := range r.CoverageFields() {
		cf := r.Coverage[name]
		if cf.Standard {
			p.StandardOnly++
		}
		p.Coverage = append(p.Coverage, coverageRow{
			Field:    name,
			Standard: cf.Standard,
			With:     cf.GrantsWithField,
			Total:    cf.TotalGrants,
		})
	}
	return p
}

// activeFilters counts the filter categories that constrain the view.
func activeFilters(f registry.Filters, now time.Time) int {
	return len(f.Predicates(now))
}
