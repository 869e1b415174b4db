package cleaner

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter creates a reusable, goroutine-safe Converter. The base
// plugin drops non-content elements, commonmark renders the usual block and
// inline syntax, and table keeps tabular data with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// ToMarkdown converts an HTML fragment to Markdown. Relative links and
// images are resolved against domain.
func ToMarkdown(conv *converter.Converter, htmlContent string, domain string) (string, error) {
	return conv.ConvertString(htmlContent, converter.WithDomain(domain))
}
