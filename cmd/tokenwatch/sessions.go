package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	logpkg "github.com/kailas-cloud/tokenwatch/internal/logger"
	"github.com/kailas-cloud/tokenwatch/internal/repository/snapshot"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/ledger"
	reportuc "github.com/kailas-cloud/tokenwatch/internal/usecase/report"
)

var exportFlags struct {
	format string
	output string
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions by token usage",
	Long: `List every session of the persisted snapshot, highest usage first.

Offline commands read the configured storage directly. Stop the service
first when using the file or sqlite driver, or changes may be overwritten.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export session counters as JSON or CSV",
	Long: `Export session counters, highest usage first.

Examples:
  tokenwatch export
  tokenwatch export --format csv --output token_usage.csv`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var resetCmd = &cobra.Command{
	Use:   "reset <session>",
	Short: "Reset the counters of one session",
	Long: `Remove a session's counters and take its tokens off the global total.

Example:
  tokenwatch reset group_123456`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(sessionsCmd, exportCmd, resetCmd)

	exportCmd.Flags().StringVarP(&exportFlags.format, "format", "f", "json", "output format: json, csv")
	exportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "", "output file (default: stdout)")
}

// offline holds a ledger restored from the configured storage.
type offline struct {
	ledger  *ledger.Ledger
	backend snapshot.Backend
	cost    float64
}

func openOffline(ctx context.Context) (*offline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logpkg.NewCLILogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	l := ledger.New(logger).WithStore(backend)
	// Refuse to work on a snapshot that could not be read: a later save
	// would replace it with empty counters.
	if err := l.Load(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &offline{ledger: l, backend: backend, cost: cfg.CostPerToken}, nil
}

func (o *offline) Close() { _ = o.backend.Close() }

func runSessions(cmd *cobra.Command, _ []string) error {
	o, err := openOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer o.Close()

	report := reportuc.New(o.ledger, o.cost)
	snap := report.Snapshot()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tTOKENS\tLAST\tDISPLAY")
	fmt.Fprintln(w, "-------\t------\t----\t-------")
	for _, row := range snap.Ranked() {
		st := snap.Session(row.Session)
		fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", st.Session, st.Tokens, st.LastUsage, st.Display)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write listing: %w", err)
	}

	sum := report.Summary()
	fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d tokens in %d sessions (%d users)", sum.TotalTokens, sum.Sessions, sum.Users)
	if report.CostEnabled() {
		fmt.Fprintf(cmd.OutOrStdout(), ", cost %.4f", sum.Cost)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	if _, err := reportuc.ParseFormat(exportFlags.format); err != nil {
		return err
	}

	o, err := openOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer o.Close()

	var out io.Writer = cmd.OutOrStdout()
	if exportFlags.output != "" {
		f, err := os.Create(exportFlags.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return reportuc.New(o.ledger, o.cost).Export(out, exportFlags.format)
}

func runReset(cmd *cobra.Command, args []string) error {
	o, err := openOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer o.Close()

	session := args[0]
	rm, err := o.ledger.Remove(cmd.Context(), session)
	if err != nil {
		return fmt.Errorf("operation failed, check logs: %w", err)
	}
	if !rm.Found {
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s has no recorded usage.\n", session)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset %s: removed %d tokens, total now %d.\n", session, rm.Removed, rm.Total)
	return nil
}
