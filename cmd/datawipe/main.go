// Command datawipe finds the accounts in a password-manager export and
// deletes them, through the site itself where possible and by GDPR erasure
// request otherwise.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var catalogDir string

	root := &cobra.Command{
		Use:   "datawipe",
		Short: "Discover and delete online accounts from a password-manager export",
		Long: `datawipe imports a CSV export from a password manager, classifies every
account it finds, and works through deletion tasks: a scripted browser flow
where a site supports it, a GDPR Article 17 erasure email otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&catalogDir, "catalog-dir", os.Getenv("DATAWIPE_CATALOG_DIR"),
		"Directory with formats.yaml, categories.yaml or sites.yaml overriding the built-in catalog")

	root.AddCommand(
		newServeCmd(),
		newInspectCmd(&catalogDir),
		newFormatsCmd(&catalogDir),
		newStrategiesCmd(),
	)
	return root
}

// newLogger builds the process logger. format is "text" or "json".
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
