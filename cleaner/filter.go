package cleaner

import (
	"github.com/PuerkitoBio/goquery"
)

// scriptSelectors and styleSelectors are the elements dropped by the
// remove_scripts and remove_styles content options.
var (
	scriptSelectors = []string{"script", "noscript"}
	styleSelectors  = []string{"style", `link[rel="stylesheet"]`}

	// basicNoise is always dropped by the basic strategy.
	basicNoise = []string{"script", "style", "noscript", "iframe"}
)

// FilterContent removes every element matching the exclude selectors from
// doc in place.
func FilterContent(doc *goquery.Document, exclude ...string) {
	for _, selector := range exclude {
		doc.Find(selector).Remove()
	}
}

func noiseSelectors(opts Options) []string {
	var sels []string
	if opts.RemoveScripts {
		sels = append(sels, scriptSelectors...)
	}
	if opts.RemoveStyles {
		sels = append(sels, styleSelectors...)
	}
	return sels
}
