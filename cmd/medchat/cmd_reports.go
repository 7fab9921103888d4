package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/comigor/medchat-go/internal/backend"
)

var (
	reportTitle   string
	reportPlain   bool
	reportExtract bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Medical report analyses",
	Long: `Upload medical reports for analysis and browse earlier analyses.

Subcommands:
  list     - List recent analyses
  show     - Print one analysis
  analyze  - Upload report files for analysis
  delete   - Delete an analysis`,
	RunE: runReportsList,
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses",
	RunE:  runReportsList,
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print one analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsShow,
}

var reportsAnalyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Upload report files (PDF or images) for analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReportsAnalyze,
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <report-id>",
	Short: "Delete an analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsDelete,
}

func init() {
	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd, reportsAnalyzeCmd, reportsDeleteCmd)
	reportsCmd.PersistentFlags().BoolVar(&reportPlain, "plain", false, "print markdown without rendering")
	reportsShowCmd.Flags().BoolVar(&reportExtract, "text", false, "also print the text extracted from the files")
	reportsAnalyzeCmd.Flags().StringVar(&reportTitle, "title", "", "title of the analysis")
}

func runReportsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	reports, err := client.ListReports(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(reports) == 0 {
		fmt.Fprintln(out, "No reports yet.")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%-8s  %-20s  %s (%d files)\n", r.ID, r.CreatedAt, r.Title, len(r.FileNames))
	}
	return nil
}

func runReportsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	r, err := client.Report(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}
	return printReport(cmd.OutOrStdout(), r, reportExtract)
}

func runReportsAnalyze(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Analyzing %d file(s)...\n", len(args))
	r, err := client.AnalyzeReports(cmd.Context(), reportTitle, args)
	if err != nil {
		return fmt.Errorf("failed to analyze reports: %w", err)
	}
	return printReport(cmd.OutOrStdout(), r, false)
}

func runReportsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	client, err := a.api()
	if err != nil {
		return err
	}

	if err := client.DeleteReport(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted report %s\n", args[0])
	return nil
}

// reportMarkdown lays a report out as one markdown document.
func reportMarkdown(r backend.Report, withText bool) string {
	var b strings.Builder
	title := r.Title
	if title == "" {
		title = "Report " + r.ID.String()
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(r.FileNames) > 0 {
		fmt.Fprintf(&b, "_Files: %s_\n\n", strings.Join(r.FileNames, ", "))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Analysis\n\n")
	b.WriteString(strings.TrimSpace(r.Analysis))
	b.WriteString("\n")
	if withText && r.ExtractedText != "" {
		b.WriteString("\n## Extracted text\n\n```\n")
		b.WriteString(strings.TrimSpace(r.ExtractedText))
		b.WriteString("\n```\n")
	}
	return b.String()
}

func printReport(out io.Writer, r backend.Report, withText bool) error {
	md := reportMarkdown(r, withText)
	if reportPlain {
		_, err := fmt.Fprint(out, md)
		return err
	}

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		_, err = fmt.Fprint(out, md)
		return err
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		_, err = fmt.Fprint(out, md)
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}
