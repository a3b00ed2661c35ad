package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// SEC endpoints; see https://www.sec.gov/developer.
const (
	secBase        = "https://www.sec.gov"
	secDataBase    = "https://data.sec.gov"
	tickersPath    = "/files/company_tickers.json"
	submissionPath = "/submissions/CIK%010d.json"
	archivePath    = "/Archives/edgar/data/%d/%s/%s"

	// FormQuarterly is the form type of a quarterly report.
	FormQuarterly = "10-Q"
)

// Filing is one entry of a company's recent filings.
type Filing struct {
	CompanyName     string    `json:"company_name"`
	CIK             int       `json:"cik"`
	AccessionNumber string    `json:"accession_number"`
	FormType        string    `json:"form_type"`
	FilingDate      time.Time `json:"filing_date"`
	ReportDate      time.Time `json:"report_date"`
	PrimaryDocument string    `json:"primary_document"`
	URL             string    `json:"url"`
}

// Submissions is the subset of the EDGAR submissions document the client
// reads. Recent filings arrive as parallel arrays.
type Submissions struct {
	Name    string `json:"name"`
	Filings struct {
		Recent recentFilings `json:"recent"`
	} `json:"filings"`
}

type recentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// EDGARClient resolves tickers to filings. It shares the Fetcher's
// User-Agent and rate limit.
type EDGARClient struct {
	fetcher *Fetcher
	ciks    *cache.Cache
	www     string
	data    string
}

// NewEDGARClient returns a client whose ticker map is cached for a day.
func NewEDGARClient(fetcher *Fetcher) *EDGARClient {
	return &EDGARClient{
		fetcher: fetcher,
		ciks:    cache.New(24*time.Hour, time.Hour),
		www:     secBase,
		data:    secDataBase,
	}
}

// WithBaseURL serves every endpoint from base.
func (c *EDGARClient) WithBaseURL(base string) *EDGARClient {
	base = strings.TrimRight(base, "/")
	c.www, c.data = base, base
	return c
}

// CIK returns the central index key of ticker.
func (c *EDGARClient) CIK(ctx context.Context, ticker string) (int, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if cik, ok := c.ciks.Get(ticker); ok {
		return cik.(int), nil
	}
	if _, loaded := c.ciks.Get(""); loaded {
		return 0, fmt.Errorf("ticker %s not found in SEC database", ticker)
	}

	body, _, err := c.fetcher.Get(ctx, c.www+tickersPath)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker map: %w", err)
	}
	// {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}
	var entries map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return 0, fmt.Errorf("parse ticker map: %w", err)
	}
	for _, e := range entries {
		c.ciks.SetDefault(strings.ToUpper(e.Ticker), e.CIK)
	}
	// empty key marks the map as loaded
	c.ciks.SetDefault("", 0)

	if cik, ok := c.ciks.Get(ticker); ok {
		return cik.(int), nil
	}
	return 0, fmt.Errorf("ticker %s not found in SEC database", ticker)
}

// Submissions fetches the filing history of cik.
func (c *EDGARClient) Submissions(ctx context.Context, cik int) (*Submissions, error) {
	body, _, err := c.fetcher.Get(ctx, c.data+fmt.Sprintf(submissionPath, cik))
	if err != nil {
		return nil, fmt.Errorf("fetch submissions of CIK %d: %w", cik, err)
	}
	var sub Submissions
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("parse submissions of CIK %d: %w", cik, err)
	}
	return &sub, nil
}

// Filings lists the recent filings of form in EDGAR order, newest first.
// An empty form matches every type; limit 0 means no limit.
func (c *EDGARClient) Filings(cik int, sub *Submissions, form string, limit int) []Filing {
	r := sub.Filings.Recent
	var out []Filing
	for i, acc := range r.AccessionNumber {
		if i >= len(r.Form) || i >= len(r.PrimaryDocument) {
			break
		}
		if form != "" && r.Form[i] != form {
			continue
		}
		out = append(out, Filing{
			CompanyName:     sub.Name,
			CIK:             cik,
			AccessionNumber: acc,
			FormType:        r.Form[i],
			FilingDate:      parseDay(r.FilingDate, i),
			ReportDate:      parseDay(r.ReportDate, i),
			PrimaryDocument: r.PrimaryDocument[i],
			URL:             c.www + fmt.Sprintf(archivePath, cik, strings.ReplaceAll(acc, "-", ""), r.PrimaryDocument[i]),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// FetchLatest10Q resolves ticker to its most recent quarterly report.
func (c *EDGARClient) FetchLatest10Q(ctx context.Context, ticker string) (*Filing, error) {
	cik, err := c.CIK(ctx, ticker)
	if err != nil {
		return nil, err
	}
	sub, err := c.Submissions(ctx, cik)
	if err != nil {
		return nil, err
	}
	filings := c.Filings(cik, sub, FormQuarterly, 1)
	if len(filings) == 0 {
		return nil, fmt.Errorf("no %s filings found for %s", FormQuarterly, ticker)
	}
	return &filings[0], nil
}

func parseDay(days []string, i int) time.Time {
	if i >= len(days) {
		return time.Time{}
	}
	t, _ := time.Parse(time.DateOnly, days[i])
	return t
}
