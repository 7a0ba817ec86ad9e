// Package site implements the arenda.az catalog adapters: link discovery on
// listing pages and field extraction on item pages. Selectors here are
// site-specific and brittle by design; the engine treats this package as a
// replaceable collaborator.
package site

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

// ErrNoListing is returned when an item page yields no usable record.
var ErrNoListing = errors.New("no listing data in document")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	numberRe     = regexp.MustCompile(`[\d\s]+`)
	floorRe      = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
)

// Arenda discovers and extracts real estate listings from arenda.az pages.
type Arenda struct {
	baseURL string
	clock   harvest.Clock
}

// New builds the adapter for the given catalog base URL.
func New(baseURL string, clock harvest.Clock) *Arenda {
	return &Arenda{baseURL: strings.TrimRight(baseURL, "/"), clock: clock}
}

// SearchPageURL builds the filtered-search URL for a catalog page number.
func (a *Arenda) SearchPageURL(page int) string {
	return fmt.Sprintf("%s/filtirli-axtaris/%d/?home_search=1&lang=1&site=1&home_s=1", a.baseURL, page)
}

// ListingLinks extracts (id, url) pairs from a listing page.
func (a *Arenda) ListingLinks(doc *harvest.Document) []harvest.ListingRef {
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Body))
	if err != nil {
		return nil
	}
	var refs []harvest.ListingRef
	root.Find("li.new_elan_box").Each(func(_ int, box *goquery.Selection) {
		id := strings.TrimPrefix(box.AttrOr("id", ""), "elan_")
		href, ok := box.Find("a[href]").First().Attr("href")
		if id == "" || !ok {
			return
		}
		url := href
		if strings.HasPrefix(href, "/") {
			url = a.baseURL + href
		}
		refs = append(refs, harvest.ListingRef{ID: id, URL: url})
	})
	return refs
}

// MaxPage reads the pagination widget and returns the highest advertised
// page number, or 1 when the widget is absent or unparseable.
func (a *Arenda) MaxPage(doc *harvest.Document) int {
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Body))
	if err != nil {
		return 1
	}
	maxPage := 1
	root.Find("ul.pagination a.page-numbers").Each(func(_ int, link *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(link.Text())); err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}

// Extract maps an item page to a Listing.
func (a *Arenda) Extract(doc *harvest.Document, url string) (*harvest.Listing, error) {
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	l := &harvest.Listing{
		URL:       url,
		ListingID: idFromURL(url),
		ScrapedAt: a.clock.Now().Format(harvest.TimeFormat),
	}

	l.PropertyType = cleanText(root.Find("h2.elan_in_title_link").First().Text())
	l.Title = cleanText(root.Find("p.elan_elan_nov").First().Text())

	if price := cleanText(root.Find("span.elan_price_new").First().Text()); price != "" {
		l.Price = price
		l.PriceAZN = extractNumber(price)
	}

	l.Location = cleanText(root.Find("p.elan_unvan").First().Text())
	l.Address = cleanText(root.Find("span.elan_unvan_txt").First().Text())

	root.Find("ul.elan_property_list li").Each(func(_ int, prop *goquery.Selection) {
		text := cleanText(prop.Text())
		switch {
		case strings.Contains(text, "otaq"):
			l.Rooms = extractNumber(text)
		case strings.Contains(text, "m2"), strings.Contains(text, "m²"):
			l.Area = extractNumber(text)
		case strings.Contains(text, "mərtəbə"):
			if m := floorRe.FindStringSubmatch(text); m != nil {
				l.Floor = m[1]
				l.TotalFloors = m[2]
			}
		}
	})

	l.Description = cleanText(root.Find("div.elan_info_txt p").First().Text())

	var features []string
	root.Find("ul.property_lists li").Each(func(_ int, feat *goquery.Selection) {
		if text := cleanText(feat.Text()); text != "" {
			features = append(features, text)
		}
	})
	l.Features = strings.Join(features, ", ")

	agent := root.Find("div.new_elan_user_info").First()
	l.AgentName = cleanText(agent.Find("p").First().Text())
	l.Phone = cleanText(agent.Find("a.elan_in_tel").First().Text())

	root.Find("div.elan_date_box p").Each(func(_ int, p *goquery.Selection) {
		text := cleanText(p.Text())
		switch {
		case strings.Contains(text, "Elanın tarixi:"):
			l.DatePosted = strings.TrimSpace(strings.Replace(text, "Elanın tarixi:", "", 1))
		case strings.Contains(text, "Elanın kodu:"):
			l.ListingCode = strings.TrimSpace(strings.Replace(text, "Elanın kodu:", "", 1))
		case strings.Contains(text, "Baxış sayı:"):
			l.ViewCount = strings.TrimSpace(strings.Replace(text, "Baxış sayı:", "", 1))
		}
	})

	l.HasDocument = yesNo(root.Find("button.kupca_ico").Length() > 0)
	l.IsCreditAvailable = yesNo(root.Find("button.kreditle_ico").Length() > 0)

	l.Latitude = root.Find(`input[name="lat"]`).First().AttrOr("value", "")
	l.Longitude = root.Find(`input[name="lon"]`).First().AttrOr("value", "")

	// Guard against pages that parsed but matched nothing, such as error
	// pages served with a 200 status.
	if l.Title == "" && l.PropertyType == "" && l.Price == "" {
		return nil, ErrNoListing
	}
	return l, nil
}

func idFromURL(url string) string {
	if i := strings.LastIndex(url, "-"); i >= 0 {
		return url[i+1:]
	}
	return ""
}

func cleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

func extractNumber(text string) string {
	return strings.TrimSpace(numberRe.FindString(text))
}

func yesNo(ok bool) string {
	if ok {
		return "Bəli"
	}
	return "Xeyr"
}
