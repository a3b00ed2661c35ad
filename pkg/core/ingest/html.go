package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TablesMarker introduces the serialized tables appended after body text.
const TablesMarker = "TABLES:"

var (
	anySpace        = regexp.MustCompile(`[\s\x{00a0}]+`)
	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	lineBreaks      = regexp.MustCompile(` ?\n[\s]*`)
)

// ExtractHTML flattens an HTML page to one line of text. Tables are serialized a second
// time, one "cell | cell" line per row, under TablesMarker so that column
// alignment survives the flattening of the body.
func ExtractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var parts []string
	collectText(doc.Selection, &parts)
	body := strings.Join(parts, " ")

	var tables []string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if t := serializeTable(table); t != "" {
			tables = append(tables, t)
		}
	})

	return withTables(strings.TrimSpace(anySpace.ReplaceAllString(body, " ")), tables), nil
}

// withTables appends serialized tables under TablesMarker.
func withTables(body string, tables []string) string {
	if len(tables) == 0 {
		return body
	}
	return body + "\n\n" + TablesMarker + "\n" + CollapseWhitespace(strings.Join(tables, "\n"))
}

// collectText appends every non-blank text node, trimmed, in document order.
func collectText(sel *goquery.Selection, out *[]string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			if t := strings.TrimSpace(s.Text()); t != "" {
				*out = append(*out, t)
			}
			return
		}
		collectText(s, out)
	})
}

// serializeTable writes one line per row. Whitespace inside a cell,
// including line breaks, collapses to a single space.
func serializeTable(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(anySpace.ReplaceAllString(cell.Text(), " ")))
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})
	return strings.Join(rows, "\n")
}

// CollapseWhitespace reduces runs of spaces to one space and runs of line
// breaks (with surrounding blanks) to one newline.
func CollapseWhitespace(s string) string {
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = lineBreaks.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
