package registry

import (
	"sort"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
)

// CurrencyUsage counts, per currency, the publishers, files and grants
// that report it.
type CurrencyUsage struct {
	Currencies []string `json:"currencies"`
	Publishers []int    `json:"publishers"`
	Files      []int    `json:"files"`
	Grants     []int    `json:"grants"`
}

func UsageByCurrency(g *Grouping) CurrencyUsage {
	u := CurrencyUsage{Currencies: DistinctCurrencies(g)}
	for _, code := range u.Currencies {
		var pubs, files, grants int
		for _, grp := range g.Groups() {
			used := false
			for _, r := range grp.Records {
				c, ok := r.Aggregates.Currencies[code]
				if !ok {
					continue
				}
				used = true
				files++
				grants += c.Count
			}
			if used {
				pubs++
			}
		}
		u.Publishers = append(u.Publishers, pubs)
		u.Files = append(u.Files, files)
		u.Grants = append(u.Grants, grants)
	}
	return u
}

// YearCoverage counts, per award year, the publishers, files and grants
// whose award date range covers it.
type YearCoverage struct {
	Years      []int `json:"years"`
	Publishers []int `json:"publishers"`
	Files      []int `json:"files"`
	Grants     []int `json:"grants"`
}

func CoverageByYear(g *Grouping) YearCoverage {
	var yc YearCoverage
	yr, ok := AwardYearRange(g.Records())
	if !ok {
		return yc
	}
	yc.Years = yr.Years()
	groups := g.Groups()
	for _, year := range yc.Years {
		var pubs, files, grants int
		for _, grp := range groups {
			covered := false
			for _, r := range grp.Records {
				if !CoversYear(r, year) {
					continue
				}
				covered = true
				files++
				grants += r.Aggregates.Count
			}
			if covered {
				pubs++
			}
		}
		yc.Publishers = append(yc.Publishers, pubs)
		yc.Files = append(yc.Files, files)
		yc.Grants = append(yc.Grants, grants)
	}
	return yc
}

// GrantCountDistribution holds the samples for the number-of-grants
// histograms. Files without grants are left out.
type GrantCountDistribution struct {
	PerPublisher []int `json:"per_publisher"`
	PerFile      []int `json:"per_file"`
}

func GrantCounts(g *Grouping) GrantCountDistribution {
	var d GrantCountDistribution
	for _, grp := range g.Groups() {
		total := 0
		for _, r := range grp.Records {
			if r.Aggregates.Count == 0 {
				continue
			}
			total += r.Aggregates.Count
			d.PerFile = append(d.PerFile, r.Aggregates.Count)
		}
		if total > 0 {
			d.PerPublisher = append(d.PerPublisher, total)
		}
	}
	return d
}

// IssuedSeries holds the samples for the date-issued histograms. The file
// series are parallel slices; PublisherFirst has the earliest issue date
// of each publisher.
type IssuedSeries struct {
	Currency       string      `json:"currency"`
	Files          []time.Time `json:"files"`
	FileGrants     []int       `json:"file_grants"`
	FileAmounts    []float64   `json:"file_amounts"`
	PublisherFirst []time.Time `json:"publisher_first"`
}

// IssuedDates collects issue dates of files that have one. Amounts are
// taken in currency.
func IssuedDates(g *Grouping, currency string) IssuedSeries {
	s := IssuedSeries{Currency: currency}
	for _, grp := range g.Groups() {
		var first core.NullTime
		for _, r := range grp.Records {
			if !r.Issued.Valid {
				continue
			}
			s.Files = append(s.Files, r.Issued.Time)
			s.FileGrants = append(s.FileGrants, r.Aggregates.Count)
			s.FileAmounts = append(s.FileAmounts, r.Aggregates.Currencies[currency].TotalAmount)
			if !first.Valid || r.Issued.Time.Before(first.Time) {
				first = r.Issued
			}
		}
		if first.Valid {
			s.PublisherFirst = append(s.PublisherFirst, first.Time)
		}
	}
	return s
}

// Options lists the values the filter controls can offer.
type Options struct {
	Licences   []Licence `json:"licences"`
	Currencies []string  `json:"currencies"`
	FileTypes  []string  `json:"file_types"`
	Fields     []string  `json:"fields"`
}

// Available gathers filter options from the unfiltered registry.
func Available(set RecordSet) Options {
	records := set.Records()
	opts := Options{
		Licences:   LicenceUnion(records),
		Currencies: DistinctCurrencies(set),
	}
	sort.SliceStable(opts.Licences, func(i, j int) bool {
		return opts.Licences[i].Name < opts.Licences[j].Name
	})

	types := make(map[string]struct{})
	fields := make(map[string]struct{})
	for _, r := range records {
		if r.Metadata.FileType != "" {
			types[r.Metadata.FileType] = struct{}{}
		}
		for name := range r.Coverage {
			fields[name] = struct{}{}
		}
	}
	opts.FileTypes = sortedKeys(types)
	opts.Fields = sortedKeys(fields)
	return opts
}
