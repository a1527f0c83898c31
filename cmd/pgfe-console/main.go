// Command pgfe-console is an interactive client over pgfe: it connects to
// a server, runs statements, and renders the resulting rows as a table.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/riftdata/pgfe/internal/config"
	"github.com/riftdata/pgfe/internal/ui"
	"github.com/riftdata/pgfe/pgfe"
	"github.com/riftdata/pgfe/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfgFile string
	dsnHost string
	dsnPort int
	dsnUser string
	dsnDB   string
	noColor bool
	output  string
)

var out *ui.Output

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if out != nil {
			out.Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:   "pgfe-console",
	Short: "Interactive client over the pgfe session/request subsystem",
	Long: `pgfe-console opens one pgfe.Connection to a PostgreSQL-compatible
server and runs statements against it, the same way an application would
drive pgfe.Connection/pgfe.Pool directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" || cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		out = ui.NewOutput(ui.OutputFormat(output), noColor, false)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pgfe-console %s (%s)\n", version, commit)
	},
}

var execCmd = &cobra.Command{
	Use:   "exec [sql]",
	Short: "Connect, run one statement, and print its rows as a table",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

var copyFromCmd = &cobra.Command{
	Use:   "copy-from [table] [file]",
	Short: "Bulk-load a local CSV file into a table via COPY FROM STDIN",
	Args:  cobra.ExactArgs(2),
	RunE:  runCopyFrom,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dsnHost, "host", "", "server host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&dsnPort, "port", 0, "server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dsnUser, "user", "", "username (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dsnDB, "database", "", "database (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&output, "output", "table", "output format: table|json|yaml")

	rootCmd.AddCommand(versionCmd, execCmd, copyFromCmd)
}

func loadOptions() (pgfe.Options, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return pgfe.Options{}, fmt.Errorf("loading config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	if dsnHost != "" {
		cfg.NetAddress = dsnHost
	}
	if dsnPort != 0 {
		cfg.Port = dsnPort
	}
	if dsnUser != "" {
		cfg.Username = dsnUser
	}
	if dsnDB != "" {
		cfg.Database = dsnDB
	}
	return cfg.ToOptions()
}

// promptMissingOptions fills in connection details interactively when the
// loaded config leaves the endpoint unset.
func promptMissingOptions(opts pgfe.Options) (pgfe.Options, error) {
	if opts.NetAddress != "" || opts.NetHostname != "" {
		return opts, nil
	}
	defaults := &ui.ConnectionDetails{
		Host:    "localhost",
		Port:    strconv.Itoa(opts.Port),
		SSLMode: "prefer",
	}
	details, err := ui.ConnectionForm(defaults)
	if err != nil {
		return opts, fmt.Errorf("connection form: %w", err)
	}
	opts.NetHostname = details.Host
	if port, err := strconv.Atoi(details.Port); err == nil {
		opts.Port = port
	}
	opts.Database = details.Database
	opts.Username = details.User
	opts.Password = details.Password
	opts.SSLEnabled = details.SSLMode != "disable"
	return opts, nil
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	opts, err = promptMissingOptions(opts)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	spinner := ui.NewSimpleSpinner(fmt.Sprintf("connecting to %s:%d", hostOf(opts), opts.Port))
	spinner.Start()
	conn := pgfe.NewConnection(opts, nil)
	if err := conn.Connect(ctx, -1); err != nil {
		spinner.StopFail(err.Error())
		return err
	}
	spinner.Stop("connected")
	defer conn.Disconnect(ctx)

	stmt, err := pgfe.NewStatement(args[0])
	if err != nil {
		return fmt.Errorf("parsing statement: %w", err)
	}

	var table *ui.Table
	completion, err := conn.Execute(ctx, stmt, func(row pgfe.Row) pgfe.RowProcessingVerdict {
		if table == nil {
			headers := make([]string, row.Info().FieldCount())
			for i := range headers {
				headers[i] = row.Info().Field(i).Name
			}
			table = ui.NewTable(out, headers...)
		}
		cols := make([]string, row.Size())
		for i := 0; i < row.Size(); i++ {
			d := row.Data(i)
			if d.IsNull() {
				cols[i] = "<null>"
			} else {
				cols[i] = d.String()
			}
		}
		table.AddRow(cols...)
		return pgfe.RowProcessingContinue
	})
	if err != nil {
		return err
	}
	if table != nil {
		table.Render()
	}
	if n, ok := completion.RowCount(); ok {
		out.Info(fmt.Sprintf("%s %d", completion.Operation(), n))
	} else {
		out.Info(completion.Operation())
	}
	return nil
}

func runCopyFrom(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	table, path := args[0], args[1]

	opts, err := loadOptions()
	if err != nil {
		return err
	}
	opts, err = promptMissingOptions(opts)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}

	conn := pgfe.NewConnection(opts, nil)
	if err := conn.Connect(ctx, -1); err != nil {
		return err
	}
	defer conn.Disconnect(ctx)

	ident, err := conn.ToQuotedIdentifier(table)
	if err != nil {
		return err
	}
	cp, err := conn.ExecuteCopyIn(ctx, fmt.Sprintf("copy %s from stdin (format csv)", ident))
	if err != nil {
		return err
	}

	bar := ui.NewSimpleProgress(st.Size(), fmt.Sprintf("loading %s", path))
	buf := make([]byte, 32*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if serr := cp.Send(buf[:n]); serr != nil {
				_ = cp.End(serr.Error())
				return serr
			}
			bar.Increment(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = cp.End(rerr.Error())
			return rerr
		}
	}
	if err := cp.End(""); err != nil {
		return err
	}
	completion, err := cp.WaitCompletion()
	if err != nil {
		return err
	}
	if n, ok := completion.RowCount(); ok {
		bar.Done(fmt.Sprintf("loaded %d rows into %s", n, table))
	} else {
		bar.Done(fmt.Sprintf("loaded %s into %s", path, table))
	}
	return nil
}

func hostOf(opts pgfe.Options) string {
	if opts.NetAddress != "" {
		return opts.NetAddress
	}
	if opts.NetHostname != "" {
		return opts.NetHostname
	}
	return strings.TrimSpace(opts.UDSDirectory)
}
