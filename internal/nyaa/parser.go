package nyaa

import (
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/varoOP/anifeed/internal/domain"
)

var viewRe = regexp.MustCompile(`^/view/(\d+)$`)

// ParseSearchResults extracts torrents from a Nyaa search result page.
// Relative download links are resolved against base. Rows without a
// /view/<id> link are skipped.
func ParseSearchResults(r io.Reader, base *url.URL) ([]domain.TorrentResult, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}
	doc := goquery.NewDocumentFromNode(root)

	results := []domain.TorrentResult{}
	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}

		var (
			id    int
			title string
		)
		cells.Eq(1).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			m := viewRe.FindStringSubmatch(a.AttrOr("href", ""))
			if m == nil {
				return
			}
			id, _ = strconv.Atoi(m[1])
			title = strings.TrimSpace(a.AttrOr("title", ""))
			if title == "" {
				title = strings.TrimSpace(a.Text())
			}
		})
		if id <= 0 || title == "" {
			return
		}

		var download string
		cells.Eq(2).Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			download = resolve(base, a.AttrOr("href", ""))
			return download == ""
		})
		if download == "" {
			return
		}

		results = append(results, domain.TorrentResult{
			TorrentID:   id,
			Title:       title,
			DownloadURL: download,
			Size:        strings.TrimSpace(cells.Eq(3).Text()),
			Seeders:     atoi(cells.Eq(5).Text()),
			Leechers:    atoi(cells.Eq(6).Text()),
		})
	})

	return results, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return ""
	}
	return u.String()
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
