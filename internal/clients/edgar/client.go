// Package edgar fetches institutional 13F filings from SEC EDGAR. The SEC
// fair-access policy requires a contact User-Agent on every request; an
// empty one leaves the provider unconfigured.
package edgar

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const (
	defaultSubmissionsURL = "https://data.sec.gov"
	defaultArchivesURL    = "https://www.sec.gov"

	form13F = "13F-HR"
)

// Client talks to the submissions API and the filing archives.
type Client struct {
	submissionsURL string
	archivesURL    string
	userAgent      string
	httpClient     *http.Client
	log            zerolog.Logger
}

// NewClient creates an EDGAR client. userAgent must identify the operator,
// e.g. "folio/1.0 (ops@example.com)".
func NewClient(userAgent string, log zerolog.Logger) *Client {
	return &Client{
		submissionsURL: defaultSubmissionsURL,
		archivesURL:    defaultArchivesURL,
		userAgent:      userAgent,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		log:            log.With().Str("client", "edgar").Logger(),
	}
}

// IsConfigured reports whether a contact User-Agent was provided.
func (c *Client) IsConfigured() bool { return c.userAgent != "" }

type submissionsResponse struct {
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			ReportDate      []string `json:"reportDate"`
			FilingDate      []string `json:"filingDate"`
		} `json:"recent"`
	} `json:"filings"`
}

// Filings13F lists an investor's 13F-HR filings, newest first. since is an
// inclusive ISO date lower bound on the filing date; empty means no bound.
func (c *Client) Filings13F(ctx context.Context, cik, since string) ([]domain.InvestorFiling, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("edgar provider not configured")
	}

	var resp submissionsResponse
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.submissionsURL, padCIK(cik))
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	recent := resp.Filings.Recent
	filings := make([]domain.InvestorFiling, 0, 8)
	for i, form := range recent.Form {
		if form != form13F {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) || i >= len(recent.ReportDate) {
			break
		}
		if since != "" && recent.FilingDate[i] < since {
			continue
		}
		filings = append(filings, domain.InvestorFiling{
			AccessionNo: recent.AccessionNumber[i],
			Form:        form,
			ReportDate:  recent.ReportDate[i],
			FiledAt:     recent.FilingDate[i],
		})
	}

	sort.Slice(filings, func(i, j int) bool { return filings[i].FiledAt > filings[j].FiledAt })
	return filings, nil
}

type indexResponse struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
		} `json:"item"`
	} `json:"directory"`
}

type informationTable struct {
	Entries []struct {
		NameOfIssuer string  `xml:"nameOfIssuer"`
		Cusip        string  `xml:"cusip"`
		Value        float64 `xml:"value"`
		ShrsOrPrnAmt struct {
			SshPrnamt float64 `xml:"sshPrnamt"`
		} `xml:"shrsOrPrnAmt"`
	} `xml:"infoTable"`
}

// FilingHoldings downloads and parses the information table of one filing.
// Position values are as reported by the filer (USD for filings from Q3 2022
// on, thousands before).
func (c *Client) FilingHoldings(ctx context.Context, cik, accessionNo string) ([]domain.FilingPosition, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("edgar provider not configured")
	}

	dir := fmt.Sprintf("%s/Archives/edgar/data/%s/%s",
		c.archivesURL, strings.TrimLeft(padCIK(cik), "0"), strings.ReplaceAll(accessionNo, "-", ""))

	var index indexResponse
	if err := c.getJSON(ctx, dir+"/index.json", &index); err != nil {
		return nil, fmt.Errorf("failed to list filing %s: %w", accessionNo, err)
	}

	tableName := findInfoTable(index)
	if tableName == "" {
		return nil, domain.NotFoundf("filing %s has no information table", accessionNo)
	}

	raw, err := c.getRaw(ctx, dir+"/"+tableName)
	if err != nil {
		return nil, err
	}

	var table informationTable
	if err := xml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("failed to parse information table: %w", err)
	}

	holdings := make([]domain.FilingPosition, 0, len(table.Entries))
	for _, e := range table.Entries {
		holdings = append(holdings, domain.FilingPosition{
			Cusip:   strings.ToUpper(strings.TrimSpace(e.Cusip)),
			Company: strings.TrimSpace(e.NameOfIssuer),
			Value:   e.Value,
			Shares:  e.ShrsOrPrnAmt.SshPrnamt,
		})
	}
	return holdings, nil
}

// findInfoTable picks the information-table document from a filing index.
// Filers name it freely ("infotable.xml", "form13fInfoTable.xml", ...), so
// match loosely and fall back to any XML that is not the primary document.
func findInfoTable(index indexResponse) string {
	var fallback string
	for _, item := range index.Directory.Item {
		name := strings.ToLower(item.Name)
		if !strings.HasSuffix(name, ".xml") {
			continue
		}
		if strings.Contains(name, "infotable") || strings.Contains(name, "info_table") {
			return item.Name
		}
		if fallback == "" && !strings.Contains(name, "primary") {
			fallback = item.Name
		}
	}
	return fallback
}

// padCIK left-pads a CIK to the fixed 10-digit form the submissions API uses.
func padCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}

func (c *Client) getJSON(ctx context.Context, url string, dest interface{}) error {
	raw, err := c.getRaw(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, domain.NotFoundf("document not found")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
