package diagnostics

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Report writes results as an aligned plain-text table followed by a summary line
func Report(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tKEY\tSOURCE\tSTATUS\tHTTP\tTIME\tMESSAGE")
	for _, r := range results {
		httpStatus := "-"
		if r.HTTPStatus != 0 {
			httpStatus = fmt.Sprint(r.HTTPStatus)
		}
		key := r.KeyMasked
		if key == "" {
			key = "-"
		}
		source := r.Source
		if source == "" {
			source = "-"
		}
		elapsed := "-"
		if r.Duration > 0 {
			elapsed = r.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Service, key, source, r.Status, httpStatus, elapsed, truncate(r.Message, 80))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := Summarize(results)
	_, err := fmt.Fprintf(w, "\n%d keys checked: %d ok, %d failed, %d services missing a key\n",
		s.Total-s.Missing, s.OK, s.Failed, s.Missing)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
