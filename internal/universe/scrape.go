package universe

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"ibkr-sma-scanner/internal/logger"
)

// DefaultRowSelector matches the rows of a constituents table such as the
// S&P 500 list on Wikipedia.
const DefaultRowSelector = "table#constituents tbody tr"

// Scraper pulls ticker symbols out of an HTML table.
type Scraper struct {
	timeout time.Duration
}

func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{timeout: timeout}
}

// Scrape visits pageURL and reads the symbol in the given zero-based column of
// every row matched by rowSelector. Header rows without td cells are skipped.
// Results are uppercased and distinct.
func (s *Scraper) Scrape(ctx context.Context, pageURL, rowSelector string, column int) ([]string, error) {
	if rowSelector == "" {
		rowSelector = DefaultRowSelector
	}

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(pageURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	})

	seen := make(map[string]bool)
	var tickers []string
	c.OnHTML(rowSelector, func(e *colly.HTMLElement) {
		sym := cellText(e.DOM, column)
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		tickers = append(tickers, sym)
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
		logger.ErrorWithErr(ctx, "Scraping error", err, "url", r.Request.URL.String(), "status", r.StatusCode)
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", pageURL, err)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, fmt.Errorf("scrape %s: %w", pageURL, scrapeErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Universe scraping completed", "url", pageURL, "tickers", len(tickers))
	return tickers, nil
}

func cellText(row *goquery.Selection, column int) string {
	cell := row.Find("td").Eq(column)
	if cell.Length() == 0 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(cell.Text()))
}

func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
