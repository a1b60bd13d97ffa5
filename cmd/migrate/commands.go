package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	migrate "github.com/Skyrin/go-migrate"
	"github.com/Skyrin/go-migrate/config"
	"github.com/Skyrin/go-migrate/e"
	"github.com/Skyrin/go-migrate/migration"
	"github.com/Skyrin/go-migrate/sql"
	"github.com/dustin/go-humanize/english"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	ECode040101 = e.Code0401 + "01"
	ECode040102 = e.Code0401 + "02"
	ECode040103 = e.Code0401 + "03"
	ECode040104 = e.Code0401 + "04"
	ECode040105 = e.Code0401 + "05"
	ECode040106 = e.Code0401 + "06"
	ECode040107 = e.Code0401 + "07"
	ECode040108 = e.Code0401 + "08"
	ECode040109 = e.Code0401 + "09"
)

// Messages printed when there is nothing to do
const (
	MsgNoPending       = "No pending migrations."
	MsgNothingToApply  = "No pending migrations to apply."
	MsgNothingToRevert = "No migrations to revert."
)

// rootOptions global flags shared by every command
type rootOptions struct {
	env        string
	dir        string
	configFile string
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", e.UserMessage(err))
		log.Debug().Msgf("%+v", err)
		return exitCode(err)
	}

	return ExitOK
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &rootOptions{
		stdout: stdout,
		stderr: stderr,
	}

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply and revert SQL migrations",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := setupLogger(o.stderr, o.logLevel, o.logFormat); err != nil {
				return e.W(err, ECode040101)
			}
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.PersistentFlags()
	f.StringVar(&o.env, "env", config.EnvDevelopment, "Environment profile: development, test or production")
	f.StringVar(&o.dir, "dir", migration.DefaultDir, "Directory holding the migration files")
	f.StringVar(&o.configFile, "config", "", "Optional YAML config file")
	f.StringVar(&o.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	f.StringVar(&o.logFormat, "log-format", LogFormatConsole, "Log format: console or json")

	cmd.AddCommand(
		newListCmd(o),
		newUpCmd(o),
		newDownCmd(o),
		newStatusCmd(o),
		newVersionCmd(o),
	)

	return cmd
}

// open loads the configuration, connects and builds the migrator. The returned
// close func must be called when done.
func (o *rootOptions) open(cmd *cobra.Command, progress func(migration.Event)) (m *migration.Migrator, cfg *config.Config, closeFn func(), err error) {
	cfg, err = config.Load(config.LoadOptions{
		Env:        o.env,
		ConfigFile: o.configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, nil, nil, e.W(err, ECode040102)
	}

	db, err := sql.NewConn(cmd.Context(), cfg.ConnParam())
	if err != nil {
		return nil, nil, nil, e.WK(err, e.KindExecution, ECode040103, e.MsgDBConnectFailed)
	}

	mc := cfg.MigratorConfig()
	mc.Progress = progress
	m, err = migration.NewMigrator(db, mc)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, e.W(err, ECode040104)
	}

	return m, cfg, func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close the database connection")
		}
	}, nil
}

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, cfg, closeFn, err := o.open(cmd, nil)
			if err != nil {
				return err
			}
			defer closeFn()

			fList, err := m.Pending(cmd.Context())
			if err != nil {
				return e.W(err, ECode040105)
			}

			if len(fList) == 0 {
				fmt.Fprintln(o.stdout, MsgNoPending)
				return nil
			}

			for _, f := range fList {
				fmt.Fprintln(o.stdout, filepath.Join(cfg.Dir, f.Path))
			}

			return nil
		},
	}
}

func newUpCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, _, closeFn, err := o.open(cmd, o.printEvent)
			if err != nil {
				return err
			}
			defer closeFn()

			applied, err := m.Up(cmd.Context())
			if err != nil {
				return e.W(err, ECode040106)
			}

			if len(applied) == 0 {
				fmt.Fprintln(o.stdout, MsgNothingToApply)
				return nil
			}
			fmt.Fprintf(o.stdout, "Applied %s.\n", english.Plural(len(applied), "migration", "migrations"))

			return nil
		},
	}
}

func newDownCmd(o *rootOptions) *cobra.Command {
	var (
		step int
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recently applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sp *int
			switch {
			case all:
				s := migration.StepAll
				sp = &s
			case cmd.Flags().Changed("step"):
				sp = &step
			}

			m, _, closeFn, err := o.open(cmd, o.printEvent)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := m.Down(cmd.Context(), sp)
			if err != nil {
				return e.W(err, ECode040107)
			}

			if len(res.Reverted) == 0 && len(res.Missing) == 0 {
				fmt.Fprintln(o.stdout, MsgNothingToRevert)
				return nil
			}
			fmt.Fprintf(o.stdout, "Reverted %s.\n", english.Plural(len(res.Reverted), "migration", "migrations"))

			return nil
		},
	}

	cmd.Flags().IntVar(&step, "step", 1, "Number of migrations to revert, -1 reverts all")
	cmd.Flags().BoolVar(&all, "all", false, "Revert every applied migration")
	cmd.MarkFlagsMutuallyExclusive("step", "all")

	return cmd
}

func newStatusCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, _, closeFn, err := o.open(cmd, nil)
			if err != nil {
				return err
			}
			defer closeFn()

			eList, err := m.Status(cmd.Context())
			if err != nil {
				return e.W(err, ECode040108)
			}

			if len(eList) == 0 {
				fmt.Fprintln(o.stdout, "No migrations applied.")
				return nil
			}

			tw := tabwriter.NewWriter(o.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tAPPLIED AT")
			for _, en := range eList {
				fmt.Fprintf(tw, "%s\t%s\n", en.Name, en.AppliedAt)
			}
			if err := tw.Flush(); err != nil {
				return e.W(err, ECode040109)
			}

			return nil
		},
	}
}

func newVersionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			sha, build := migrate.Version()
			if sha == "" {
				sha = "dev"
			}
			fmt.Fprintf(o.stdout, "sha: %s build: %s\n", sha, build)
		},
	}
}

// printEvent prints each migration as it is applied or reverted
func (o *rootOptions) printEvent(ev migration.Event) {
	switch ev.Action {
	case migration.EventApplied:
		fmt.Fprintf(o.stdout, "Applied: %s\n", ev.ID)
	case migration.EventReverted:
		fmt.Fprintf(o.stdout, "Reverted: %s\n", ev.ID)
	case migration.EventMissing:
		fmt.Fprintf(o.stderr, "Warning: %s: %s\n", e.MsgMigrationFileNotFound, ev.ID)
	}
}
