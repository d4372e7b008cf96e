package core

import (
	"sort"
	"time"
)

type (
	// Record is one disclosed data file from the registry status feed,
	// with every date-bearing field already normalized.
	Record struct {
		Identifier   NullString
		Title        string
		Description  string
		Publisher    Publisher
		License      NullString
		LicenseName  string
		Issued       NullTime
		Modified     NullTime
		Distribution []Distribution
		Metadata     Metadata
		Aggregates   Aggregates
		Coverage     map[string]CoverageField
	}

	Publisher struct {
		Name    NullString
		Prefix  string
		Website string
		Logo    string
	}

	Distribution struct {
		Title       string
		AccessURL   string
		DownloadURL string
	}

	// Metadata is what the data getter recorded while downloading the file.
	Metadata struct {
		FileType           string
		Valid              TriState
		Downloads          TriState
		AcceptableLicense  TriState
		DatetimeDownloaded NullTime
	}

	// Aggregates are the precomputed per-file summary statistics.
	Aggregates struct {
		Count                               int
		Currencies                          map[string]CurrencyAggregate
		DistinctRecipientOrgIdentifierCount int
		DistinctFundingOrgIdentifierCount   int
		MaxAwardDate                        NullTime
		MinAwardDate                        NullTime
	}

	CurrencyAggregate struct {
		Count       int
		TotalAmount float64
		MinAmount   float64
		MaxAmount   float64
	}

	// CoverageField reports whether a named field is populated in the file.
	CoverageField struct {
		Standard        bool
		GrantsWithField int
		TotalGrants     int
	}
)

// FirstDistribution returns the authoritative distribution entry.
func (r Record) FirstDistribution() (Distribution, bool) {
	if len(r.Distribution) == 0 {
		return Distribution{}, false
	}
	return r.Distribution[0], true
}

// CurrencyCodes returns the currencies reported by the record, sorted.
func (r Record) CurrencyCodes() []string {
	codes := make([]string, 0, len(r.Aggregates.Currencies))
	for code := range r.Aggregates.Currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// HasCurrency reports whether the record's aggregates include code.
func (r Record) HasCurrency(code string) bool {
	_, ok := r.Aggregates.Currencies[code]
	return ok
}

// CoverageFields returns every field name listed in the coverage map, sorted.
func (r Record) CoverageFields() []string {
	fields := make([]string, 0, len(r.Coverage))
	for name := range r.Coverage {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// AwardYears returns the first and last award years of the file.
// ok is false unless both award date bounds are present.
func (r Record) AwardYears() (first, last int, ok bool) {
	if !r.Aggregates.MinAwardDate.Valid || !r.Aggregates.MaxAwardDate.Valid {
		return 0, 0, false
	}
	return r.Aggregates.MinAwardDate.Time.Year(), r.Aggregates.MaxAwardDate.Time.Year(), true
}

// ModifiedSince reports whether the record was modified at or after cutoff.
// Records without a modified date never match.
func (r Record) ModifiedSince(cutoff time.Time) bool {
	return r.Modified.Valid && !r.Modified.Time.Before(cutoff)
}
