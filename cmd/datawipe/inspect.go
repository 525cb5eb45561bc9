package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/catalog"
)

func newInspectCmd(catalogDir *string) *cobra.Command {
	var showSkipped bool

	cmd := &cobra.Command{
		Use:   "inspect <export.csv | ->",
		Short: "Detect the format of an export and list the accounts it contains",
		Long: `Detect the format of a password-manager export and print every account
found in it, most urgent first. Nothing is written to the database and no
passwords are printed. Use "-" to read the export from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(*catalogDir)
			if err != nil {
				return err
			}

			data, err := readExport(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			analysis, err := application.NewAnalyzer(cat).Analyze(data)
			if err != nil {
				return err
			}
			return printAnalysis(cmd.OutOrStdout(), analysis, showSkipped)
		},
	}
	cmd.Flags().BoolVar(&showSkipped, "skipped", false, "Also list the rows that were skipped and why")
	return cmd
}

func readExport(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return data, nil
}

func printAnalysis(w io.Writer, a application.Analysis, showSkipped bool) error {
	det := a.Detection
	format := det.FormatName
	if det.Generic {
		format += " (generic column match)"
	}
	fmt.Fprintf(w, "Format:     %s [%s]\n", format, det.FormatID)
	fmt.Fprintf(w, "Confidence: %.0f%%\n", det.Confidence*100)
	fmt.Fprintf(w, "Encoding:   %s\n", a.Encoding)
	fmt.Fprintf(w, "Accounts:   %d (%d skipped)\n\n", len(a.Accounts), len(a.Skipped))

	accounts := append(a.Accounts[:0:0], a.Accounts...)
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].DeletionPriority > accounts[j].DeletionPriority
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tCATEGORY\tRISK\tSITE\tLOGIN\tURL")
	for _, acct := range accounts {
		fmt.Fprintf(tw, "%d %s\t%s\t%s\t%s\t%s\t%s\n",
			acct.DeletionPriority, acct.PriorityLabel,
			acct.Category, acct.RiskLevel,
			acct.SiteName, acct.Identity(), acct.SiteURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if showSkipped && len(a.Skipped) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tREASON")
		for _, s := range a.Skipped {
			fmt.Fprintf(tw, "%d\t%s\n", s.Row, s.Reason)
		}
		return tw.Flush()
	}
	return nil
}
