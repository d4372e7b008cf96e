package registry

import (
	"sort"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
)

// RecordSet is anything that can be flattened into records: a plain list
// or a Grouping.
type RecordSet interface {
	Records() []core.Record
}

// List adapts a flat slice to RecordSet.
type List []core.Record

func (l List) Records() []core.Record { return l }

// TotalGrantCount sums the grant counts of records. Absent aggregates count
// as zero.
func TotalGrantCount(records []core.Record) int {
	total := 0
	for _, r := range records {
		total += r.Aggregates.Count
	}
	return total
}

// CurrencyTotals sums total_amount per currency code.
func CurrencyTotals(records []core.Record) map[string]float64 {
	totals := make(map[string]float64)
	for _, r := range records {
		for code, c := range r.Aggregates.Currencies {
			totals[code] += c.TotalAmount
		}
	}
	return totals
}

// CurrencyGrantCounts sums the per-currency grant counts.
func CurrencyGrantCounts(records []core.Record) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		for code, c := range r.Aggregates.Currencies {
			counts[code] += c.Count
		}
	}
	return counts
}

// DistinctCurrencies returns every currency code seen in set, sorted.
func DistinctCurrencies(set RecordSet) []string {
	seen := make(map[string]struct{})
	for _, r := range set.Records() {
		for code := range r.Aggregates.Currencies {
			seen[code] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// YearRange is an inclusive span of award years.
type YearRange struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// Years lists every year of the range.
func (y YearRange) Years() []int {
	if y.Last < y.First {
		return nil
	}
	out := make([]int, 0, y.Last-y.First+1)
	for year := y.First; year <= y.Last; year++ {
		out = append(out, year)
	}
	return out
}

// AwardYearRange spans the earliest min_award_date year to the latest
// max_award_date year of records. ok is false when either bound is missing
// from every record, which includes the empty group.
func AwardYearRange(records []core.Record) (YearRange, bool) {
	minDate, maxDate := AwardDateBounds(records)
	if !minDate.Valid || !maxDate.Valid {
		return YearRange{}, false
	}
	yr := YearRange{First: minDate.Time.Year(), Last: maxDate.Time.Year()}
	if yr.Last < yr.First {
		return YearRange{}, false
	}
	return yr, true
}

// AwardDateBounds returns the combined min and max award dates of records.
func AwardDateBounds(records []core.Record) (minDate, maxDate core.NullTime) {
	for _, r := range records {
		if d := r.Aggregates.MinAwardDate; d.Valid && (!minDate.Valid || d.Time.Before(minDate.Time)) {
			minDate = d
		}
		if d := r.Aggregates.MaxAwardDate; d.Valid && (!maxDate.Valid || d.Time.After(maxDate.Time)) {
			maxDate = d
		}
	}
	return minDate, maxDate
}

// CoversYear reports whether r has both award bounds and year lies
// between them.
func CoversYear(r core.Record, year int) bool {
	first, last, ok := r.AwardYears()
	return ok && first <= year && year <= last
}

// CoverageFieldUnion returns the standard coverage fields of records, sorted.
func CoverageFieldUnion(records []core.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for name, f := range r.Coverage {
			if f.Standard {
				seen[name] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

// Licence identifies a licence by URL with its display name.
type Licence struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// LicenceUnion returns the distinct licences of records in first-seen
// order. Records without a licence URL are skipped.
func LicenceUnion(records []core.Record) []Licence {
	var out []Licence
	seen := make(map[string]struct{})
	for _, r := range records {
		if !r.License.Valid {
			continue
		}
		if _, ok := seen[r.License.String]; ok {
			continue
		}
		seen[r.License.String] = struct{}{}
		out = append(out, Licence{URL: r.License.String, Name: r.LicenseName})
	}
	return out
}

// Summary is the computed view of one group.
type Summary struct {
	Key               Key
	Publisher         core.Publisher
	Files             int
	Grants            int
	CurrencyTotals    map[string]float64
	AwardRange        YearRange
	HasAwardRange     bool
	MinAwardDate      core.NullTime
	MaxAwardDate      core.NullTime
	CoverageFields    []string
	Licences          []Licence
	RecipientOrgs     int
	FundingOrgs       int
	LastModified      core.NullTime
	InvalidFiles      int
	UndownloadedFiles int
}

// Summarize computes the aggregates of a group. Org counts are summed per
// file, so an organisation present in two files counts twice.
func Summarize(g Group) Summary {
	s := Summary{
		Key:            g.Key,
		Files:          len(g.Records),
		Grants:         TotalGrantCount(g.Records),
		CurrencyTotals: CurrencyTotals(g.Records),
		CoverageFields: CoverageFieldUnion(g.Records),
		Licences:       LicenceUnion(g.Records),
	}
	s.AwardRange, s.HasAwardRange = AwardYearRange(g.Records)
	s.MinAwardDate, s.MaxAwardDate = AwardDateBounds(g.Records)
	for i, r := range g.Records {
		if i == 0 {
			s.Publisher = r.Publisher
		}
		s.RecipientOrgs += r.Aggregates.DistinctRecipientOrgIdentifierCount
		s.FundingOrgs += r.Aggregates.DistinctFundingOrgIdentifierCount
		if r.Modified.Valid && (!s.LastModified.Valid || r.Modified.Time.After(s.LastModified.Time)) {
			s.LastModified = r.Modified
		}
		if r.Metadata.Valid == core.Failed {
			s.InvalidFiles++
		}
		if r.Metadata.Downloads == core.Failed {
			s.UndownloadedFiles++
		}
	}
	return s
}

// SummarizeAll summarizes every group of g in key order.
func SummarizeAll(g *Grouping) []Summary {
	groups := g.Groups()
	out := make([]Summary, 0, len(groups))
	for _, grp := range groups {
		out = append(out, Summarize(grp))
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
