package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/internal/service"
	"github.com/tao2825/library-borrow-system/pkg/config"
	"github.com/tao2825/library-borrow-system/pkg/database"
	"github.com/tao2825/library-borrow-system/pkg/jwt"
	"github.com/tao2825/library-borrow-system/pkg/logger"
)

// app is the state shared by subcommands once config is loaded.
type app struct {
	cfg *config.Config
	log *slog.Logger
	db  *gorm.DB
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "libctl",
		Short:         "Operator tool for the library circulation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.NewLogger(cfg.LogLevel)

			db, err := database.Connect(database.FromConfig(cfg))
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			a.db = db
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	root.AddCommand(
		newMigrateCmd(a),
		newResetPasswordCmd(a),
		newReportCmd(a),
	)
	return root
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(a.db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", a.cfg.DBDriver)
			return nil
		},
	}
}

func newResetPasswordCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password <username>",
		Short: "Set a new password and sign the account out everywhere",
		Long: "Sets a new password for the account, forces a change on next login and " +
			"invalidates every issued token. Without --password the new password is read from the terminal.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				password, err = readPassword(cmd, "New password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}

			auth := service.NewAuthService(
				repository.NewUserRepo(a.db),
				jwt.NewManager(a.cfg.JWTSecret, a.cfg.TokenTTL),
				a.log,
			)
			if err := auth.ResetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password for %s has been reset; it must be changed at next login\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password (prompted when empty)")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Export circulation reports",
	}

	var from, to, status, out string
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "Write the borrow ledger as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sqlxDB, err := database.SQLX(a.db, a.cfg.DBDriver)
			if err != nil {
				return err
			}
			reports := service.NewReportService(
				repository.NewReportRepo(sqlxDB, database.Dialect(a.cfg.DBDriver)),
				nil, 0, a.log,
			)

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			n, err := reports.WriteLedgerCSV(ctx, w, from, to, status)
			if err != nil {
				return err
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s\n", n, out)
			}
			return nil
		},
	}
	ledger.Flags().StringVar(&from, "from", "", "first borrow date, YYYY-MM-DD")
	ledger.Flags().StringVar(&to, "to", "", "last borrow date, YYYY-MM-DD")
	ledger.Flags().StringVar(&status, "status", "all", "all, borrowed or returned")
	ledger.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")

	report.AddCommand(ledger)
	return report
}

// readPassword masks input on a terminal and falls back to one line of stdin otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
