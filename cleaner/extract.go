package cleaner

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// metaSources maps metadata keys to the meta attributes they are read from,
// in order of preference.
var metaSources = []struct {
	key       string
	selectors []string
}{
	{"description", []string{`meta[name="description"]`, `meta[property="og:description"]`}},
	{"author", []string{`meta[name="author"]`, `meta[property="article:author"]`}},
	{"keywords", []string{`meta[name="keywords"]`}},
	{"published_time", []string{`meta[property="article:published_time"]`}},
	{"modified_time", []string{`meta[property="article:modified_time"]`}},
	{"og_image", []string{`meta[property="og:image"]`}},
	{"og_type", []string{`meta[property="og:type"]`}},
	{"viewport", []string{`meta[name="viewport"]`}},
	{"robots", []string{`meta[name="robots"]`}},
}

// ExtractMetadata collects the page's descriptive meta tags. Keys with no
// value are omitted.
func ExtractMetadata(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	for _, src := range metaSources {
		for _, sel := range src.selectors {
			if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
				meta[src.key] = v
				break
			}
		}
	}
	if lang := strings.TrimSpace(doc.Find("html").First().AttrOr("lang", "")); lang != "" {
		meta["language"] = lang
	}
	if canonical := strings.TrimSpace(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", "")); canonical != "" {
		meta["canonical"] = canonical
	}
	return meta
}

// ExtractLinks returns the distinct absolute http(s) links in doc, resolved
// against sourceURL, in document order. Fragment-only, javascript:, mailto:
// and similar links are skipped.
func ExtractLinks(doc *goquery.Document, sourceURL string) []string {
	links := []string{}

	base, err := url.Parse(sourceURL)
	if err != nil {
		return links
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		// Resolve relative URLs against the base.
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""

		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links
}

// ExtractOpenGraph returns the page's Open Graph properties keyed without
// the "og:" prefix. Typed fields come from the opengraph parser; any other
// og:* properties are read directly.
func ExtractOpenGraph(rawHTML string, doc *goquery.Document) map[string]string {
	props := make(map[string]string)

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(rawHTML)); err == nil {
		set := func(k, v string) {
			if v = strings.TrimSpace(v); v != "" {
				props[k] = v
			}
		}
		set("title", og.Title)
		set("type", og.Type)
		set("url", og.URL)
		set("description", og.Description)
		set("site_name", og.SiteName)
		set("locale", og.Locale)
		if len(og.Images) > 0 {
			set("image", og.Images[0].URL)
		}
	}

	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		key := strings.TrimPrefix(s.AttrOr("property", ""), "og:")
		v := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || v == "" {
			return
		}
		if _, exists := props[key]; !exists {
			props[key] = v
		}
	})

	return props
}
