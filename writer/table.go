package writer

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// renderText formats the report as a human-readable table for terminal
// use. The JSON format remains the machine-readable surface.
func renderText(report *RunReport) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "funding arbitrage report %s (%s)\n", report.RunID, report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&buf, "sort=%s top_n=%d min_spread=%s max_price_spread_pct=%s min_volume=%s\n\n",
		report.Params.SortKey, report.Params.TopN, report.Params.MinSpread,
		report.Params.MaxPriceSpreadPct, report.Params.MinVolume)

	if len(report.Opportunities) == 0 {
		buf.WriteString("no opportunities cleared the configured thresholds\n\n")
	} else {
		tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tLONG\tRATE\tSHORT\tRATE\tSPREAD\tANNUALIZED")
		for _, o := range report.Opportunities {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				o.Symbol,
				o.LongExchange, o.LongRate.String(),
				o.ShortExchange, o.ShortRate.String(),
				o.FundingSpread.String(), o.AnnualizedSpread.String())
		}
		tw.Flush()
		buf.WriteByte('\n')
	}

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXCHANGE\tRECORDS\tDURATION\tERROR")
	for _, s := range report.Sources {
		errText := s.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%dms\t%s\n", s.Exchange, s.Records, s.DurationMs, errText)
	}
	tw.Flush()

	fmt.Fprintf(&buf, "\n%d records, %d symbols (%d on multiple exchanges), %d dropped\n",
		report.Stats.TotalRecords, report.Stats.UniqueSymbols,
		report.Stats.MultiExchangeSymbols, report.Stats.DroppedRecords)

	return buf.Bytes()
}
