package service

import (
	"github.com/jjenkins/edinet/internal/model"
)

// Filter decides whether a listed filing enters the manifest
type Filter func(model.Filing) bool

// DefaultFilter keeps annual, quarterly and semi-annual reports of
// companies, dropping anything filed for an investment fund.
var DefaultFilter = All(
	RetainCategories(model.DocTypeAnnualReport, model.DocTypeQuarterlyReport, model.DocTypeSemiAnnualReport),
	WithoutFund,
)

// RetainCategories keeps filings whose report-type code is one of codes.
// A null code never matches.
func RetainCategories(codes ...string) Filter {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(f model.Filing) bool {
		if f.DocTypeCode == nil {
			return false
		}
		_, ok := set[*f.DocTypeCode]
		return ok
	}
}

// WithoutFund keeps filings that carry no fund code
func WithoutFund(f model.Filing) bool {
	return f.FundCode == nil
}

// All is the conjunction of filters
func All(filters ...Filter) Filter {
	return func(f model.Filing) bool {
		for _, keep := range filters {
			if !keep(f) {
				return false
			}
		}
		return true
	}
}

// Apply returns the retained filings in their original order. The input is
// not modified.
func (keep Filter) Apply(filings []model.Filing) []model.Filing {
	out := make([]model.Filing, 0, len(filings))
	for _, f := range filings {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
