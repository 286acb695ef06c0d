package catalog

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/util"
)

// tableID is the id of the <table> element listing archives on the
// catalog page.
const tableID = "zimtable"

// ParsePage parses the catalog page HTML into records. Relative links
// are resolved against base when base is non-nil.
func ParsePage(r io.Reader, base *url.URL) ([]archive.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog page: %w", err)
	}

	table := doc.Find("table#" + tableID)
	if table.Length() == 0 {
		return nil, fmt.Errorf("could not find table with id %q", tableID)
	}

	var records []archive.Record
	var rowErr error
	// First row is the header
	table.Find("tr").Slice(1, goquery.ToEnd).EachWithBreak(func(i int, tr *goquery.Selection) bool {
		rec, err := parseRow(tr, base)
		if err != nil {
			rowErr = fmt.Errorf("catalog row %d: %w", i+1, err)
			return false
		}
		records = append(records, rec)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return records, nil
}

// parseRow parses one <tr> of the catalog table. Column order:
// project, language, size, date, flavor, links (zim, sha256, torrent,
// magnet).
func parseRow(tr *goquery.Selection, base *url.URL) (archive.Record, error) {
	tds := tr.Find("td")
	if tds.Length() < 6 {
		return archive.Record{}, fmt.Errorf("expected 6 cells, got %d", tds.Length())
	}

	projectCell := strings.Fields(text(tds.Eq(0)))
	if len(projectCell) == 0 {
		return archive.Record{}, fmt.Errorf("empty project cell")
	}

	rec := archive.Record{
		Reference: archive.NewReference(projectCell[0], text(tds.Eq(1)), text(tds.Eq(4))),
	}

	// Date and size columns are free text on an untrusted page; a cell
	// that fails to parse leaves the zero value rather than discarding
	// the whole entry.
	if created, err := archive.ParseMonth(text(tds.Eq(3))); err == nil {
		rec.Created = created
	} else {
		util.DebugLog("Unparseable date %q for %s", text(tds.Eq(3)), rec.Reference)
	}
	if size, err := ParseSize(text(tds.Eq(2))); err == nil {
		rec.SizeBytes = size
	} else {
		util.DebugLog("Unparseable size %q for %s", text(tds.Eq(2)), rec.Reference)
	}

	links := tds.Eq(5).Find("a")
	if links.Length() < 2 {
		return archive.Record{}, fmt.Errorf("expected download and digest links for %s", rec.Reference)
	}
	rec.URL = href(links.Eq(0), base)
	rec.SHA256URL = href(links.Eq(1), base)
	if links.Length() > 2 {
		rec.TorrentURL = href(links.Eq(2), base)
	}
	if links.Length() > 3 {
		rec.MagnetURL = href(links.Eq(3), base)
	}
	if rec.URL == "" {
		return archive.Record{}, fmt.Errorf("missing download link for %s", rec.Reference)
	}

	return rec, nil
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

func href(sel *goquery.Selection, base *url.URL) string {
	raw, ok := sel.Attr("href")
	if !ok {
		return ""
	}
	raw = strings.TrimSpace(raw)
	if base == nil {
		return raw
	}
	// Magnet and other non-hierarchical links pass through untouched
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(u).String()
}
