package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilingFlagsDecode(t *testing.T) {
	raw := `{
		"docID": "S100ABCD",
		"edinetCode": "E00001",
		"fundCode": null,
		"docTypeCode": "120",
		"submitDateTime": "2024-03-01 09:15",
		"withdrawalStatus": "0",
		"xbrlFlag": "1",
		"pdfFlag": "0",
		"attachDocFlag": "1",
		"englishDocFlag": "0",
		"csvFlag": "1"
	}`

	var f Filing
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	assert.True(t, f.Has(ArtifactXBRL))
	assert.False(t, f.Has(ArtifactPDF))
	assert.True(t, f.Has(ArtifactAttachment))
	assert.False(t, f.Has(ArtifactEnglish))
	assert.True(t, f.Has(ArtifactCSV))
	assert.Nil(t, f.FundCode)
	assert.Equal(t, "120", f.DocType())
	require.NotNil(t, f.WithdrawalStatus)
	assert.Equal(t, "0", *f.WithdrawalStatus)
	assert.Equal(t, "E00001", f.FilerCode())
	assert.Equal(t, "", f.Filer())
}

func TestFilingFlagsEncodeAsRegistryStrings(t *testing.T) {
	f := Filing{DocID: "S100ABCD", XBRLFlag: true}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "1", generic["xbrlFlag"])
	assert.Equal(t, "0", generic["pdfFlag"])
	assert.Nil(t, generic["fundCode"])
}

// registryRecord has every key a listing result carries, with the nullable
// ones set to null the way the registry sends them for sparse filings.
const registryRecord = `{
	"seqNumber": 7,
	"docID": "S100NULL",
	"edinetCode": null,
	"secCode": null,
	"JCN": null,
	"filerName": null,
	"fundCode": null,
	"ordinanceCode": null,
	"formCode": null,
	"docTypeCode": null,
	"periodStart": null,
	"periodEnd": null,
	"submitDateTime": "2024-03-01 09:15",
	"docDescription": null,
	"issuerEdinetCode": null,
	"subjectEdinetCode": null,
	"subsidiaryEdinetCode": null,
	"currentReportReason": null,
	"parentDocID": null,
	"opeDateTime": null,
	"withdrawalStatus": null,
	"docInfoEditStatus": null,
	"disclosureStatus": null,
	"xbrlFlag": "0",
	"pdfFlag": "1",
	"attachDocFlag": "0",
	"englishDocFlag": "0",
	"csvFlag": "0",
	"legalStatus": null
}`

func TestFilingReencodesNullsUnchanged(t *testing.T) {
	var f Filing
	require.NoError(t, json.Unmarshal([]byte(registryRecord), &f))
	assert.Equal(t, "", f.FilerCode())
	assert.Equal(t, "", f.Filer())

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var want, got map[string]any
	require.NoError(t, json.Unmarshal([]byte(registryRecord), &want))
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}

func TestFlagRejectsGarbage(t *testing.T) {
	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &f))
}

func TestSubmissionDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"minutes", "2024-03-01 09:15", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"seconds", "2024-12-31 23:59:59", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), false},
		{"date only", "2023-06-30", time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filing{SubmitDateTime: tt.input}.SubmissionDate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestSubmittedAtKeepsTimeOfDay(t *testing.T) {
	got, err := Filing{SubmitDateTime: "2024-03-01 09:15"}.SubmittedAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC), got)

	_, err = Filing{SubmitDateTime: "soon"}.SubmittedAt()
	assert.Error(t, err)
}

func TestListingConsistent(t *testing.T) {
	l := &Listing{Results: []Filing{{DocID: "a"}, {DocID: "b"}}}
	l.Metadata.ResultSet.Count = 2
	assert.True(t, l.Consistent())

	l.Metadata.ResultSet.Count = 3
	assert.False(t, l.Consistent())
}

func TestArtifactFileNames(t *testing.T) {
	assert.Equal(t, "S100ABCD_xbrl.zip", ArtifactXBRL.FileName("S100ABCD"))
	assert.Equal(t, "S100ABCD.pdf", ArtifactPDF.FileName("S100ABCD"))
	assert.Equal(t, "S100ABCD_csv.zip", ArtifactCSV.FileName("S100ABCD"))
	assert.Equal(t, "S100ABCD_attach.zip", ArtifactAttachment.FileName("S100ABCD"))
	assert.Equal(t, "S100ABCD_english.zip", ArtifactEnglish.FileName("S100ABCD"))
}

func TestParseArtifactKind(t *testing.T) {
	k, err := ParseArtifactKind("PDF")
	require.NoError(t, err)
	assert.Equal(t, ArtifactPDF, k)

	k, err = ParseArtifactKind("5")
	require.NoError(t, err)
	assert.Equal(t, ArtifactCSV, k)

	_, err = ParseArtifactKind("docx")
	assert.Error(t, err)
}

func TestCategoryLabel(t *testing.T) {
	label, ok := CategoryLabel(DocTypeAnnualReport)
	assert.True(t, ok)
	assert.Equal(t, "有価証券報告書", label)

	_, ok = CategoryLabel("999")
	assert.False(t, ok)
}
