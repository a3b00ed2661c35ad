package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `<html><head><style>.x{color:red}</style><script>var a = 1;</script></head>
<body>
  <h1>Condensed Consolidated Balance Sheets</h1>
  <p>Total   current assets were
     strong.</p>
  <table>
    <tr><th>Item</th><th>2024</th></tr>
    <tr><td>Total Current Assets</td><td>$ 1,000</td></tr>
    <tr><td>Total Current Liabilities</td><td>$ 500</td></tr>
  </table>
</body></html>`

func TestExtractHTML(t *testing.T) {
	text, err := ExtractHTML([]byte(sampleHTML))
	require.NoError(t, err)

	assert.NotContains(t, text, "var a")
	assert.NotContains(t, text, "color:red")
	assert.Contains(t, text, "Total current assets were strong.")
	assert.Contains(t, text, "\n\n"+TablesMarker+"\n")

	tables := text[strings.Index(text, TablesMarker):]
	assert.Contains(t, tables, "Item | 2024\n")
	assert.Contains(t, tables, "Total Current Assets | $ 1,000\n")
	assert.Contains(t, tables, "Total Current Liabilities | $ 500")
}

func TestExtractHTMLCellsStayOnOneLine(t *testing.T) {
	page := "<table><tr><td>Total\n      current assets</td><td>$&nbsp;500</td></tr>" +
		"<tr><td>Total current\r\n\tliabilities</td><td>$ 250</td></tr></table>"
	text, err := ExtractHTML([]byte(page))
	require.NoError(t, err)

	tables := text[strings.Index(text, TablesMarker):]
	assert.Equal(t, TablesMarker+"\nTotal current assets | $ 500\nTotal current liabilities | $ 250", tables)
}

func TestExtractHTMLWithoutTables(t *testing.T) {
	text, err := ExtractHTML([]byte("<p>only prose</p>"))
	require.NoError(t, err)
	assert.Equal(t, "only prose", text)
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b\nc", CollapseWhitespace("  a \t  b \n\n   \n c  "))
	assert.Equal(t, "x y", CollapseWhitespace("x  y"))
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	data := buildDOCX(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t xml:space="preserve"> Report</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:r><w:t>Net income rose.</w:t></w:r></w:p>
    <w:tbl>
      <w:tr><w:tc><w:p><w:r><w:t>Cash</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>250</w:t></w:r></w:p></w:tc></w:tr>
    </w:tbl>
  </w:body>
</w:document>`)

	text, err := ExtractDOCX(data)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report\nNet income rose.\n\n"+TablesMarker+"\nCash | 250", text)
}

func TestExtractDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ExtractDOCX(buf.Bytes())
	assert.Error(t, err)

	_, err = ExtractDOCX([]byte("not a zip"))
	assert.Error(t, err)
}

func TestExtractPDFInvalid(t *testing.T) {
	_, err := ExtractPDF([]byte("%PDF-1.4 garbage"), nil)
	assert.Error(t, err)
}

// buildPDF writes a PDF with one line of text on each page.
func buildPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (page %d) Tj ET", i+1)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtractPDFReportsPageProgress(t *testing.T) {
	var got [][2]int
	text, err := ExtractPDF(buildPDF(11), func(done, total int) { got = append(got, [2]int{done, total}) })
	require.NoError(t, err)
	assert.Contains(t, text, "page 11")

	require.Len(t, got, 11)
	for i, p := range got {
		assert.Equal(t, [2]int{i + 1, 11}, p)
	}
}

func TestExtractPDFShortDocumentIsSilent(t *testing.T) {
	calls := 0
	text, err := ExtractPDF(buildPDF(10), func(int, int) { calls++ })
	require.NoError(t, err)
	assert.Contains(t, text, "page 10")
	assert.Zero(t, calls, "ten pages or fewer report no progress")
}

func TestResolveMimeType(t *testing.T) {
	assert.Equal(t, MimeHTML, ResolveMimeType("text/html; charset=utf-8", "", nil))
	assert.Equal(t, MimePDF, ResolveMimeType("application/octet-stream", "q3.PDF", nil))
	assert.Equal(t, MimeDOCX, ResolveMimeType("", "report.docx", nil))
	assert.Equal(t, MimePDF, ResolveMimeType("", "", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")))
	assert.Equal(t, MimeHTML, ResolveMimeType("", "", []byte("<!DOCTYPE html><html><body>x</body></html>")))
	assert.Equal(t, MimeText, ResolveMimeType("", "", []byte("plain words only")))
	assert.Equal(t, "", ResolveMimeType("", "", nil))
}

func TestLoaderPayload(t *testing.T) {
	l := NewLoader(nil)

	doc, err := l.Load(context.Background(), Source{Filename: "notes.txt", Data: []byte("  Revenue grew.  ")})
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew.", doc.Text)
	assert.Equal(t, MimeText, doc.MimeType)
	assert.Equal(t, "notes.txt", doc.Source)
	assert.Len(t, doc.Hash, 64)

	again, err := l.Load(context.Background(), Source{Filename: "notes.txt", Data: []byte("Revenue grew.")})
	require.NoError(t, err)
	assert.Equal(t, doc.Hash, again.Hash, "hash covers extracted text")
}

func TestLoaderUnsupported(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), Source{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoaderURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "CreditIQ/1.0 (test@example.com)" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/filing.htm":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, sampleHTML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(NewFetcher("CreditIQ/1.0 (test@example.com)", 0, 0))
	doc, err := l.Load(context.Background(), Source{URL: srv.URL + "/filing.htm"})
	require.NoError(t, err)
	assert.Equal(t, MimeHTML, doc.MimeType)
	assert.Contains(t, doc.Text, "Total Current Assets | $ 1,000")

	_, err = l.Load(context.Background(), Source{URL: srv.URL + "/missing.htm"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestLoaderURLWithoutFetcher(t *testing.T) {
	_, err := NewLoader(nil).Load(context.Background(), Source{URL: "https://example.com/x.htm"})
	assert.Error(t, err)
}

func TestFetcherHonorsContext(t *testing.T) {
	f := NewFetcher("ua", 0, 0.001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.Get(ctx, "http://127.0.0.1:1/")
	assert.Error(t, err)
}

func TestEDGARFetchLatest10Q(t *testing.T) {
	var tickerHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tickerHits, 1)
		fmt.Fprint(w, `{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."}}`)
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"cik": "0000320193",
			"name": "Apple Inc.",
			"filings": {"recent": {
				"accessionNumber": ["0000320193-24-000123", "0000320193-24-000081"],
				"filingDate": ["2024-11-01", "2024-08-02"],
				"reportDate": ["2024-09-28", "2024-06-29"],
				"form": ["10-K", "10-Q"],
				"primaryDocument": ["aapl-20240928.htm", "aapl-20240629.htm"],
				"size": [100, 200]
			}}
		}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewEDGARClient(NewFetcher("ua", 0, 0)).WithBaseURL(srv.URL)

	filing, err := client.FetchLatest10Q(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, FormQuarterly, filing.FormType)
	assert.Equal(t, "Apple Inc.", filing.CompanyName)
	assert.Equal(t, srv.URL+"/Archives/edgar/data/320193/000032019324000081/aapl-20240629.htm", filing.URL)
	assert.Equal(t, 2024, filing.ReportDate.Year())

	_, err = client.CIK(context.Background(), "MSFT")
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tickerHits), "ticker map is cached")
}

func TestFilingsLimitAndFilter(t *testing.T) {
	var sub Submissions
	require.NoError(t, json.Unmarshal([]byte(`{"name": "Acme", "filings": {"recent": {
		"accessionNumber": ["a-1", "a-2", "a-3"],
		"form": ["10-Q", "8-K", "10-Q"],
		"primaryDocument": ["one.htm", "two.htm", "three.htm"]
	}}}`), &sub))
	client := NewEDGARClient(NewFetcher("ua", 0, 0)).WithBaseURL("https://sec.test")

	assert.Len(t, client.Filings(42, &sub, "", 0), 3)
	q := client.Filings(42, &sub, FormQuarterly, 0)
	require.Len(t, q, 2)
	assert.Equal(t, "three.htm", q[1].PrimaryDocument)
	assert.Equal(t, "https://sec.test/Archives/edgar/data/42/a3/three.htm", q[1].URL)
	assert.True(t, q[1].FilingDate.IsZero())
	assert.Len(t, client.Filings(42, &sub, FormQuarterly, 1), 1)
}
