package edgar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const submissionsBody = `{"filings":{"recent":{
	"accessionNumber":["0000950123-24-011775","0000950123-24-008740","0000950123-23-009348","0000950123-23-001234"],
	"form":["13F-HR","10-K","13F-HR","13F-HR"],
	"reportDate":["2024-09-30","2024-06-30","2023-09-30","2022-12-31"],
	"filingDate":["2024-11-14","2024-08-05","2023-11-14","2023-02-14"]
}}}`

const indexBody = `{"directory":{"item":[
	{"name":"primary_doc.xml"},
	{"name":"0000950123-24-011775-index.htm"},
	{"name":"infotable.xml"}
]}}`

const infotableBody = `<?xml version="1.0" encoding="UTF-8"?>
<informationTable xmlns="http://www.sec.gov/edgar/document/thirteenf/informationtable">
  <infoTable>
    <nameOfIssuer>APPLE INC</nameOfIssuer>
    <cusip>037833100</cusip>
    <value>69900000</value>
    <shrsOrPrnAmt><sshPrnamt>300000000</sshPrnamt><sshPrnamtType>SH</sshPrnamtType></shrsOrPrnAmt>
  </infoTable>
  <infoTable>
    <nameOfIssuer>COCA COLA CO</nameOfIssuer>
    <cusip>191216100</cusip>
    <value>28700000</value>
    <shrsOrPrnAmt><sshPrnamt>400000000</sshPrnamt><sshPrnamtType>SH</sshPrnamtType></shrsOrPrnAmt>
  </infoTable>
</informationTable>`

func newTestClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "folio/1.0 (ops@example.com)", r.Header.Get("User-Agent"))
		switch {
		case r.URL.Path == "/submissions/CIK0001067983.json":
			_, _ = w.Write([]byte(submissionsBody))
		case r.URL.Path == "/Archives/edgar/data/1067983/000095012324011775/index.json":
			_, _ = w.Write([]byte(indexBody))
		case r.URL.Path == "/Archives/edgar/data/1067983/000095012324011775/infotable.xml":
			_, _ = w.Write([]byte(infotableBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient("folio/1.0 (ops@example.com)", zerolog.Nop())
	c.submissionsURL = srv.URL
	c.archivesURL = srv.URL
	return c
}

func TestFilings13F(t *testing.T) {
	c := newTestClient(t)

	filings, err := c.Filings13F(context.Background(), "1067983", "")
	require.NoError(t, err)

	require.Len(t, filings, 3, "non-13F forms filtered out")
	assert.Equal(t, "0000950123-24-011775", filings[0].AccessionNo, "newest first")
	assert.Equal(t, "2024-09-30", filings[0].ReportDate)
	assert.Equal(t, "0000950123-23-001234", filings[2].AccessionNo)
}

func TestFilings13FSinceFilter(t *testing.T) {
	c := newTestClient(t)

	filings, err := c.Filings13F(context.Background(), "1067983", "2023-06-01")
	require.NoError(t, err)

	require.Len(t, filings, 2)
	for _, f := range filings {
		assert.GreaterOrEqual(t, f.FiledAt, "2023-06-01")
	}
}

func TestFilingHoldings(t *testing.T) {
	c := newTestClient(t)

	holdings, err := c.FilingHoldings(context.Background(), "1067983", "0000950123-24-011775")
	require.NoError(t, err)

	require.Len(t, holdings, 2)
	assert.Equal(t, "037833100", holdings[0].Cusip)
	assert.Equal(t, "APPLE INC", holdings[0].Company)
	assert.InDelta(t, 69900000, holdings[0].Value, 1e-9)
	assert.InDelta(t, 300000000, holdings[0].Shares, 1e-9)
	assert.Equal(t, "COCA COLA CO", holdings[1].Company)
}

func TestFindInfoTableFallback(t *testing.T) {
	var index indexResponse
	raw := `{"directory":{"item":[
		{"name":"primary_doc.xml"},
		{"name":"xslForm13F_X02/report.html"},
		{"name":"form13fholdings.xml"}
	]}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &index))

	assert.Equal(t, "form13fholdings.xml", findInfoTable(index))
}

func TestPadCIK(t *testing.T) {
	assert.Equal(t, "0001067983", padCIK("1067983"))
	assert.Equal(t, "0001067983", padCIK(" 1067983 "))
	assert.Equal(t, "1234567890", padCIK("1234567890"))
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient("", zerolog.Nop())
	assert.False(t, c.IsConfigured())

	_, err := c.Filings13F(context.Background(), "1067983", "")
	assert.Error(t, err)
	_, err = c.FilingHoldings(context.Background(), "1067983", "acc")
	assert.Error(t, err)
}
