// Package policy decides whether a URL may be fetched according to the
// origin's robots exclusion file.
package policy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/use-agent/sieve/cache"
	"github.com/use-agent/sieve/models"
)

// Decision is the outcome of a policy check.
type Decision string

const (
	Allowed    Decision = "allowed"
	Disallowed Decision = "disallowed"
	// FailOpen means the robots file could not be obtained or parsed and
	// the request was allowed.
	FailOpen Decision = "fail_open"
)

const maxRobotsBytes = 512 << 10

// rules is one origin's cached robots data. A nil data allows everything.
type rules struct {
	data     *robotstxt.RobotsData
	failOpen bool
}

// Options configures a Gate.
type Options struct {
	// Client performs robots fetches. Its transport is shared with the fetcher.
	Client *http.Client

	// UserAgent is sent with robots fetches.
	UserAgent string

	// Agent is the product token matched against User-agent groups.
	Agent string

	TTL        time.Duration // default: 1h
	FailureTTL time.Duration // default: 1m
	Timeout    time.Duration // default: 5s
	MaxEntries int           // default: 10000
}

// Gate checks URLs against per-origin robots rules. Parsed rules are
// cached for TTL; failed lookups are cached for the shorter FailureTTL.
// Concurrent lookups for one origin share a single fetch.
type Gate struct {
	client     *http.Client
	userAgent  string
	agent      string
	ttl        time.Duration
	failureTTL time.Duration
	timeout    time.Duration

	cache  *cache.Cache[rules]
	flight singleflight.Group
}

// NewGate creates a Gate. Call Stop to release its cache sweeper.
func NewGate(opts Options) *Gate {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10_000
	}
	if opts.Agent == "" {
		opts.Agent = "*"
	}
	return &Gate{
		client:     opts.Client,
		userAgent:  opts.UserAgent,
		agent:      opts.Agent,
		ttl:        opts.TTL,
		failureTTL: opts.FailureTTL,
		timeout:    opts.Timeout,
		cache:      cache.New[rules](opts.MaxEntries, 5*time.Minute),
	}
}

// Check evaluates target against its origin's robots rules. The returned
// error is non-nil only when the caller's context ends first.
func (g *Gate) Check(ctx context.Context, target string) (Decision, error) {
	u, err := url.Parse(target)
	if err != nil {
		return FailOpen, nil
	}
	origin := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)

	r, err := g.rulesFor(ctx, origin)
	if err != nil {
		return "", err
	}
	if r.data == nil {
		if r.failOpen {
			return FailOpen, nil
		}
		return Allowed, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if r.data.TestAgent(path, g.agent) {
		return Allowed, nil
	}
	return Disallowed, nil
}

// Allowed returns a permission error when robots rules forbid target.
func (g *Gate) Allowed(ctx context.Context, target string) error {
	d, err := g.Check(ctx, target)
	if err != nil {
		return err
	}
	if d == Disallowed {
		return DeniedError(target)
	}
	return nil
}

// DeniedError is the permission error for a URL the robots rules forbid.
func DeniedError(target string) *models.ScrapeError {
	return models.NewScrapeError(models.KindPermission, models.ErrCodeRobotsDisallowed,
		"URL is disallowed by the site's robots exclusion rules", nil).
		WithDetail("url", target).
		WithSuggestion("The site disallows automated access to this path. Disable respect_robots only if you have permission.")
}

// CrawlDelay returns the crawl delay the origin declares for the agent, if
// its rules are already cached.
func (g *Gate) CrawlDelay(origin string) time.Duration {
	r, ok := g.cache.Get(origin)
	if !ok || r.data == nil {
		return 0
	}
	if grp := r.data.FindGroup(g.agent); grp != nil {
		return grp.CrawlDelay
	}
	return 0
}

// Len reports the number of cached origins.
func (g *Gate) Len() int { return g.cache.Len() }

// Stop releases background resources.
func (g *Gate) Stop() { g.cache.Stop() }

func (g *Gate) rulesFor(ctx context.Context, origin string) (rules, error) {
	if r, ok := g.cache.Get(origin); ok {
		return r, nil
	}

	ch := g.flight.DoChan(origin, func() (any, error) {
		// Detached from any single caller so one cancellation does not
		// fail the other waiters.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		r, ttl := g.fetch(fctx, origin)
		g.cache.Set(origin, r, ttl)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return rules{}, ctx.Err()
	case res := <-ch:
		return res.Val.(rules), nil
	}
}

func (g *Gate) fetch(ctx context.Context, origin string) (rules, time.Duration) {
	robotsURL := origin + "/robots.txt"
	failOpen := func(reason string, err error) (rules, time.Duration) {
		slog.Debug("robots: allowing by default",
			"origin", origin, "reason", reason, "error", err,
		)
		return rules{failOpen: true}, g.failureTTL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return failOpen("build request", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return failOpen("fetch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// No robots file: everything is allowed for the full TTL.
		return rules{}, g.ttl
	default:
		return failOpen("status", fmt.Errorf("robots.txt returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return failOpen("read body", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return failOpen("parse", err)
	}
	return rules{data: data}, g.ttl
}
