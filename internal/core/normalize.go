package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

type (
	// RawRecord mirrors one entry of the status feed before normalization.
	// Optional scalars are pointers so that absence survives decoding.
	// Dates stay undecoded so that a value of the wrong JSON type is
	// reported against its field instead of failing the record.
	RawRecord struct {
		Identifier           *string                     `json:"identifier"`
		Title                string                      `json:"title"`
		Description          string                      `json:"description"`
		Publisher            *RawPublisher               `json:"publisher"`
		License              *string                     `json:"license"`
		LicenseName          string                      `json:"license_name"`
		Issued               json.RawMessage             `json:"issued"`
		Modified             json.RawMessage             `json:"modified"`
		Distribution         []RawDistribution           `json:"distribution"`
		DatagetterMetadata   *RawMetadata                `json:"datagetter_metadata"`
		DatagetterAggregates *RawAggregates              `json:"datagetter_aggregates"`
		DatagetterCoverage   map[string]RawCoverageField `json:"datagetter_coverage"`
	}

	RawPublisher struct {
		Name    *string `json:"name"`
		Prefix  string  `json:"prefix"`
		Website string  `json:"website"`
		Logo    string  `json:"logo"`
	}

	RawDistribution struct {
		Title       string `json:"title"`
		AccessURL   string `json:"accessURL"`
		DownloadURL string `json:"downloadURL"`
	}

	RawMetadata struct {
		FileType           string          `json:"file_type"`
		Valid              TriState        `json:"valid"`
		Downloads          TriState        `json:"downloads"`
		AcceptableLicense  TriState        `json:"acceptable_license"`
		DatetimeDownloaded json.RawMessage `json:"datetime_downloaded"`
	}

	RawAggregates struct {
		Count                               int                             `json:"count"`
		Currencies                          map[string]RawCurrencyAggregate `json:"currencies"`
		DistinctRecipientOrgIdentifierCount int                             `json:"distinct_recipient_org_identifier_count"`
		DistinctFundingOrgIdentifierCount   int                             `json:"distinct_funding_org_identifier_count"`
		MaxAwardDate                        json.RawMessage                 `json:"max_award_date"`
		MinAwardDate                        json.RawMessage                 `json:"min_award_date"`
	}

	RawCurrencyAggregate struct {
		Count       int     `json:"count"`
		TotalAmount float64 `json:"total_amount"`
		MinAmount   float64 `json:"min_amount"`
		MaxAmount   float64 `json:"max_amount"`
	}

	RawCoverageField struct {
		Standard        bool `json:"standard"`
		GrantsWithField int  `json:"grants_with_field"`
		TotalGrants     int  `json:"total_grants"`
	}
)

// RecordError reports a feed entry that could not be decoded and was
// skipped.
type RecordError struct {
	Index      int
	Identifier string
	Err        error
}

func (e *RecordError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.Identifier, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// DecodeRecords decodes the status feed, a JSON array of records. Entries
// that do not decode are skipped and returned as RecordErrors; err is set
// only when data is not a JSON array.
func DecodeRecords(data []byte) (records []RawRecord, skipped []*RecordError, err error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("decode registry feed: %w", err)
	}

	records = make([]RawRecord, 0, len(entries))
	for i, entry := range entries {
		var rec RawRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			skipped = append(skipped, &RecordError{Index: i, Identifier: identifierOf(entry), Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// identifierOf digs the identifier out of an entry that failed to decode.
func identifierOf(entry json.RawMessage) string {
	var head struct {
		Identifier json.RawMessage `json:"identifier"`
	}
	if json.Unmarshal(entry, &head) != nil {
		return ""
	}
	var id string
	if json.Unmarshal(head.Identifier, &id) != nil {
		return ""
	}
	return id
}

// Normalize converts a raw feed entry into a Record.
//
// Every date field in DateFields is parsed independently. A field that
// cannot be parsed is left absent and reported as a *MalformedDateError;
// the returned error joins all such failures and the Record is still usable.
func Normalize(raw RawRecord) (Record, error) {
	rec := Record{
		Identifier:  nullString(raw.Identifier),
		Title:       raw.Title,
		Description: raw.Description,
		License:     nullString(raw.License),
		LicenseName: raw.LicenseName,
	}

	if raw.Publisher != nil {
		rec.Publisher = Publisher{
			Name:    nullString(raw.Publisher.Name),
			Prefix:  raw.Publisher.Prefix,
			Website: raw.Publisher.Website,
			Logo:    raw.Publisher.Logo,
		}
	}

	for _, d := range raw.Distribution {
		rec.Distribution = append(rec.Distribution, Distribution(d))
	}

	var errs []error
	parse := func(field string, value json.RawMessage, dst *NullTime) {
		t, err := parseField(field, value)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = t
	}

	parse(FieldModified, raw.Modified, &rec.Modified)

	if md := raw.DatagetterMetadata; md != nil {
		rec.Metadata = Metadata{
			FileType:          md.FileType,
			Valid:             md.Valid,
			Downloads:         md.Downloads,
			AcceptableLicense: md.AcceptableLicense,
		}
		parse(FieldDatetimeDownloaded, md.DatetimeDownloaded, &rec.Metadata.DatetimeDownloaded)
	}

	parse(FieldIssued, raw.Issued, &rec.Issued)

	if agg := raw.DatagetterAggregates; agg != nil {
		rec.Aggregates = Aggregates{
			Count:                               agg.Count,
			DistinctRecipientOrgIdentifierCount: agg.DistinctRecipientOrgIdentifierCount,
			DistinctFundingOrgIdentifierCount:   agg.DistinctFundingOrgIdentifierCount,
		}
		if len(agg.Currencies) > 0 {
			rec.Aggregates.Currencies = make(map[string]CurrencyAggregate, len(agg.Currencies))
			for code, c := range agg.Currencies {
				rec.Aggregates.Currencies[code] = CurrencyAggregate(c)
			}
		}
		parse(FieldMaxAwardDate, agg.MaxAwardDate, &rec.Aggregates.MaxAwardDate)
		parse(FieldMinAwardDate, agg.MinAwardDate, &rec.Aggregates.MinAwardDate)
	}

	if len(raw.DatagetterCoverage) > 0 {
		rec.Coverage = make(map[string]CoverageField, len(raw.DatagetterCoverage))
		for name, f := range raw.DatagetterCoverage {
			rec.Coverage[name] = CoverageField(f)
		}
	}

	return rec, errors.Join(errs...)
}

func nullString(s *string) NullString {
	if s == nil {
		return NullString{}
	}
	return Str(*s)
}
