package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/chrissnell/launchplanner/internal/diagnostics"
	"github.com/chrissnell/launchplanner/internal/keys"
	"github.com/spf13/cobra"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	headStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func paint(style lipgloss.Style, s string) string {
	if noColor || jsonOutput {
		return s
	}
	return style.Render(s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	km, _, err := newProber(cfg)
	if err != nil {
		return err
	}

	status := km.Status()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, status)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tNAME\tKEYS\tACTIVE\tSOURCES")
	configured := 0
	for _, st := range status {
		keysCol := fmt.Sprint(st.Total)
		switch {
		case !st.Enabled:
			keysCol = paint(warnStyle, "disabled")
		case st.Total == 0:
			keysCol = paint(warnStyle, "none")
		default:
			configured++
		}
		active := fmt.Sprint(st.Active)
		if st.Total > 0 && st.Active == 0 {
			active = paint(failStyle, active)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.Service, st.DisplayName, keysCol, active, sources(st.Keys))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d of %d services configured\n", configured, len(status))
	if configured < len(status) {
		fmt.Fprintln(out, "Run 'keycheck guide <service>' to see how to get a missing key.")
	}
	return nil
}

func sources(ks []keys.KeyStatus) string {
	var list []string
	for _, k := range ks {
		if !contains(list, k.Source) {
			list = append(list, k.Source)
		}
	}
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func runTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, prober, err := newProber(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var results []diagnostics.Result
	if len(args) == 1 {
		svc, err := parseService(args[0])
		if err != nil {
			return err
		}
		results = prober.Check(ctx, svc)
	} else {
		results = prober.CheckAll(ctx)
	}

	out := cmd.OutOrStdout()
	summary := diagnostics.Summarize(results)
	if jsonOutput {
		if err := writeJSON(out, map[string]any{"results": results, "summary": summary}); err != nil {
			return err
		}
	} else {
		if err := diagnostics.Report(out, results); err != nil {
			return err
		}
		if summary.Failed == 0 {
			fmt.Fprintln(out, paint(okStyle, "All configured keys are working."))
		}
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%s", paint(failStyle, fmt.Sprintf("%d key(s) failed", summary.Failed)))
	}
	return nil
}

func runGuide(cmd *cobra.Command, args []string) error {
	var guides []diagnostics.Guide
	if len(args) == 1 {
		svc, err := parseService(args[0])
		if err != nil {
			return err
		}
		g, err := diagnostics.GuideFor(svc)
		if err != nil {
			return err
		}
		guides = append(guides, g)
	} else {
		guides = diagnostics.Guides()
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, guides)
	}
	for i, g := range guides {
		if i > 0 {
			fmt.Fprintln(out)
		}
		writeGuide(out, g)
	}
	return nil
}

func writeGuide(w io.Writer, g diagnostics.Guide) {
	title := g.DisplayName
	if g.Optional {
		title += " (optional)"
	}
	fmt.Fprintln(w, paint(headStyle, title))
	fmt.Fprintf(w, "  Sign up:  %s\n", g.SignupURL)
	fmt.Fprintf(w, "  Env vars: %s\n", strings.Join(g.EnvVars, ", "))
	if g.Notes != "" {
		fmt.Fprintf(w, "  Notes:    %s\n", g.Notes)
	}
	for i, step := range g.Steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}
