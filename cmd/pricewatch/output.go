package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/models"
	"pricewatch/internal/notify"
	"pricewatch/internal/pagination"
	"pricewatch/internal/services"
	"pricewatch/internal/tracker"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func money(d decimal.Decimal) string {
	return notify.FormatMoney(d.InexactFloat64())
}

func optionalMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return money(d.Decimal)
}

func printReport(w io.Writer, r *tracker.CycleReport, asJSON bool) error {
	if asJSON {
		return printJSON(w, r)
	}

	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "STORE\tSTATUS\tATTEMPTS\tOFFICIAL\tDISCOUNTED\tALERT\tERROR")
	for _, res := range r.Results {
		official, discounted, alert := "-", "-", "-"
		if res.Official > 0 {
			official = notify.FormatMoney(res.Official)
		}
		if res.Discounted != nil {
			discounted = notify.FormatMoney(*res.Discounted)
		}
		if res.Alerted {
			alert = res.Reason
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			res.Label, res.Status, res.Attempts, official, discounted, alert, res.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nProcessed %d: %d succeeded, %d failed, %d skipped, %d alerts (%d not delivered) in %s\n",
		r.Processed, r.Succeeded, r.Failed, r.Skipped, r.Alerted, r.NotifyFailures, r.Duration.Round(time.Millisecond))
	return err
}

func printHistory(w io.Writer, page *pagination.PageResponse[services.AliasObservation], asJSON bool) error {
	if asJSON {
		return printJSON(w, page)
	}

	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "OBSERVED\tSTORE\tSIZE\tOFFICIAL\tDISCOUNTED\tPER UNIT")
	for _, o := range page.Data {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ObservedAt.Local().Format("2006-01-02 15:04"), o.StoreName, o.Size,
			money(o.OfficialPrice), optionalMoney(o.DiscountedPrice), o.PricePerUnit.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nPage %d of %d (%d observations)\n", page.Page, page.TotalPages, page.TotalItems)
	return err
}

func printBest(w io.Writer, best []services.UnitPrice, asJSON bool) error {
	if asJSON {
		return printJSON(w, best)
	}

	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "PER UNIT\tSTORE\tSIZE\tOFFICIAL\tDISCOUNTED\tOBSERVED")
	for _, b := range best {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.PricePerUnit.StringFixed(2), b.StoreName, b.Size,
			money(b.OfficialPrice), optionalMoney(b.DiscountedPrice), b.ObservedAt.Local().Format("2006-01-02"))
	}
	return tw.Flush()
}

func printProducts(w io.Writer, products []models.Product, asJSON bool) error {
	if asJSON {
		return printJSON(w, products)
	}

	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "ALIAS\tNAME\tSIZE\tUNITS\tSTORE\tURL")
	for _, p := range products {
		if len(p.Presentations) == 0 {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\n", p.Alias, p.Name)
			continue
		}
		for _, pr := range p.Presentations {
			if len(pr.Stores) == 0 {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t-\t-\n", p.Alias, p.Name, pr.Size, pr.UnitCount)
				continue
			}
			for _, st := range pr.Stores {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", p.Alias, p.Name, pr.Size, pr.UnitCount, st.StoreName, st.URL)
			}
		}
	}
	return tw.Flush()
}
