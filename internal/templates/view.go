package templates

import (
	"net/url"

	"github.com/a-h/templ"

	"github.com/jjenkins/edinet/internal/model"
)

// HomeMetrics is the catalogue overview shown on the home page
type HomeMetrics struct {
	HasData        bool
	TotalFilings   int
	TotalCompanies int
	TotalBytes     int64
	Categories     []model.CategoryCount
}

// FilingQuery is the filter and sort state of the filings page
type FilingQuery struct {
	EdinetCode  string
	DocTypeCode string
	Status      string
	SortBy      string
	Order       string
}

// URL encodes q for links, flipping the order when sorting by the same column
func (q FilingQuery) URL(sortBy string) string {
	order := "desc"
	if q.SortBy == sortBy && q.Order != "asc" {
		order = "asc"
	}
	v := url.Values{}
	if q.EdinetCode != "" {
		v.Set("company", q.EdinetCode)
	}
	if q.DocTypeCode != "" {
		v.Set("type", q.DocTypeCode)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	v.Set("sort", sortBy)
	v.Set("order", order)
	return "/filings?" + v.Encode()
}

func (q FilingQuery) arrow(column string) string {
	if q.SortBy != column {
		return ""
	}
	if q.Order == "asc" {
		return " ↑"
	}
	return " ↓"
}

type reportType struct {
	Code  string
	Label string
}

func reportTypes() []reportType {
	codes := []string{model.DocTypeAnnualReport, model.DocTypeQuarterlyReport, model.DocTypeSemiAnnualReport}
	out := make([]reportType, 0, len(codes))
	for _, code := range codes {
		label, _ := model.CategoryLabel(code)
		out = append(out, reportType{Code: code, Label: code + " " + label})
	}
	return out
}

func filingURL(docID string) templ.SafeURL {
	return templ.URL("/filings/" + url.PathEscape(docID))
}

func companyURL(edinetCode string) templ.SafeURL {
	return templ.URL("/filings?company=" + url.QueryEscape(edinetCode))
}

func typeURL(docTypeCode string) templ.SafeURL {
	return templ.URL("/filings?type=" + url.QueryEscape(docTypeCode))
}

func artifactURL(docID string, kind model.ArtifactKind) templ.SafeURL {
	return templ.URL("/filings/" + url.PathEscape(docID) + "/artifacts/" + kind.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
