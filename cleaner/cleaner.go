package cleaner

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/sieve/models"
)

// Strategy names reported in Extraction.Strategy besides the request modes.
const (
	StrategyArticle = "article"
	StrategyPruning = "pruning"
)

// Options selects the strategy and enrichment for one extraction.
type Options struct {
	Mode     models.ExtractionMode
	Selector string

	RemoveScripts   bool
	RemoveStyles    bool
	ExtractMetadata bool
	ExtractLinks    bool
	Markdown        bool
}

// Extraction is the strategy-independent output of Extract.
type Extraction struct {
	Title    string
	Text     string
	Excerpt  string
	Byline   string
	SiteName string

	// HTML is the extracted fragment the text was taken from.
	HTML     string
	Markdown string

	// Strategy is the strategy that produced the text.
	Strategy string

	Metadata       map[string]string
	Links          []string
	StructuredData []any
	OpenGraph      map[string]string
	ElementsFound  int

	Metrics models.ContentMetrics
}

// Cleaner turns fetched HTML into clean text using one of several
// extraction strategies. The Markdown converter is created once and reused
// across requests (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{mdConverter: newMarkdownConverter()}
}

// Extract runs the strategy selected by opts.Mode on rawHTML:
//
//	auto:       readability and block pruning, best result wins, else basic
//	article:    readability, else basic
//	custom:     elements matching opts.Selector
//	structured: JSON-LD + Open Graph + body text
//
// Metadata, links and the Markdown rendering are added when requested.
// Failures are *models.ScrapeError values of kind parsing.
func (c *Cleaner) Extract(rawHTML, sourceURL string, opts Options) (*Extraction, error) {
	raw, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.KindParsing, models.ErrCodeExtraction, "cannot parse HTML", err)
	}
	cleaned := goquery.CloneDocument(raw)
	FilterContent(cleaned, noiseSelectors(opts)...)

	var ex *Extraction
	switch opts.Mode {
	case models.ModeCustom:
		if ex, err = customExtract(cleaned, opts.Selector); err != nil {
			return nil, err
		}
	case models.ModeStructured:
		ex = structuredExtract(rawHTML, raw, cleaned)
	case models.ModeArticle:
		ex = articleExtract(cleaned, sourceURL, false)
	case models.ModeAuto, "":
		ex = articleExtract(cleaned, sourceURL, true)
	default:
		return nil, models.NewScrapeError(models.KindValidation, models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown extraction mode %q", opts.Mode), nil)
	}

	if ex.Text == "" {
		return nil, models.NewScrapeError(models.KindParsing, models.ErrCodeExtraction,
			"no text content could be extracted", nil).
			WithDetail("strategy", ex.Strategy)
	}

	if opts.ExtractMetadata {
		ex.Metadata = ExtractMetadata(raw)
	}
	if opts.ExtractLinks {
		ex.Links = ExtractLinks(raw, sourceURL)
	}
	if opts.Markdown && ex.HTML != "" {
		md, err := ToMarkdown(c.mdConverter, ex.HTML, sourceURL)
		if err != nil {
			slog.Warn("markdown: conversion failed", "url", sourceURL, "error", err)
		} else {
			ex.Markdown = strings.TrimSpace(md)
		}
	}
	ex.Metrics = ComputeMetrics(ex.Text)
	return ex, nil
}

// articleExtract runs readability and, when prune is set, block pruning
// concurrently and keeps the better result. When neither yields usable
// text the basic strategy is used, keeping any metadata readability found.
func articleExtract(doc *goquery.Document, sourceURL string, prune bool) *Extraction {
	docHTML, err := doc.Html()
	if err != nil {
		return basicExtract(doc)
	}

	var (
		article                readability.Article
		articleOK              bool
		prunedHTML, prunedText string
		prunedOK               bool
		wg                     sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		article, articleOK = ExtractArticle(docHTML, sourceURL)
	}()
	if prune {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prunedHTML, prunedText, prunedOK = PruneContent(doc)
		}()
	}
	wg.Wait()

	articleText := NormalizeText(article.TextContent)
	fromArticle := func(ex *Extraction) *Extraction {
		if article.Title != "" {
			ex.Title = article.Title
		}
		ex.Excerpt = article.Excerpt
		ex.Byline = article.Byline
		ex.SiteName = article.SiteName
		return ex
	}

	switch {
	case articleOK && (!prunedOK || preferArticle(articleText, prunedText)):
		return fromArticle(&Extraction{
			Title:    documentTitle(doc),
			Text:     articleText,
			HTML:     article.Content,
			Strategy: StrategyArticle,
		})
	case prunedOK && len(prunedText) >= minArticleLength:
		return fromArticle(&Extraction{
			Title:    documentTitle(doc),
			Text:     prunedText,
			HTML:     prunedHTML,
			Strategy: StrategyPruning,
		})
	default:
		return fromArticle(basicExtract(doc))
	}
}

// preferArticle picks the result with more text, unless the longer one is
// more than ten times the shorter, which usually means it kept boilerplate.
func preferArticle(articleText, prunedText string) bool {
	a, p := len(articleText), len(prunedText)
	if a >= p {
		return p <= minArticleLength || a <= 10*p
	}
	return a > minArticleLength && p > 10*a
}
