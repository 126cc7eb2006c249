package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ibkr-sma-scanner/internal/types"
)

// MissingPreview is how many missing tickers the table lists by name.
const MissingPreview = 20

// WriteTable renders a scan for the terminal.
func WriteTable(w io.Writer, res types.ScanResult) error {
	if res.Stale {
		fmt.Fprintf(w, "Warning: SMA cache is from %s, expected %s. Consider rebuilding.\n\n", res.CacheDate, res.ExpectedDate)
	}

	if len(res.Matches) == 0 {
		fmt.Fprintln(w, "None matched.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "TICKER\tPRICE\tSMA50\tSMA100\tSMA200\t")
		for _, m := range res.Matches {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n", m.Ticker, m.Price, m.SMA50, m.SMA100, m.SMA200)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if n := len(res.MissingFromCache); n > 0 {
		fmt.Fprintf(w, "\n%d tickers missing from cache (rebuild to include them): %s\n", n, preview(res.MissingFromCache))
	}
	if n := len(res.NoData); n > 0 {
		fmt.Fprintf(w, "\n%d tickers returned no data: %s\n", n, preview(res.NoData))
	}
	return nil
}

// preview joins the first MissingPreview tickers and counts the rest.
func preview(tickers []string) string {
	n := len(tickers)
	if n <= MissingPreview {
		return strings.Join(tickers, ", ")
	}
	return strings.Join(tickers[:MissingPreview], ", ") + fmt.Sprintf(", ... (+%d more)", n-MissingPreview)
}
