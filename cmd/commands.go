package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Dosada05/battle-tournament/config"
	"github.com/Dosada05/battle-tournament/db"
	"github.com/Dosada05/battle-tournament/roster"
	"github.com/Dosada05/battle-tournament/services"
	"github.com/Dosada05/battle-tournament/utils"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(true)
			if err != nil {
				return err
			}
			conn, err := db.Connect(cfg.DatabaseURL, dbConnectTimeout, logger)
			if err != nil {
				return err
			}
			defer closeDB(conn)

			applied, err := db.Migrate(cmd.Context(), conn, logger)
			if err != nil {
				return err
			}
			logger.Info("migrations complete", slog.Int("applied", applied))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a tournament with categories and contestants from a YAML roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := roster.LoadFile(file)
			if err != nil {
				return err
			}
			engine, cleanup, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := r.Apply(cmd.Context(), engine.Registration, logger)
			if summary != nil && summary.Tournament != nil {
				logger.Info("roster applied",
					slog.Int("tournament_id", summary.Tournament.ID),
					slog.Int("categories", summary.Categories),
					slog.Int("contestants", summary.Contestants))
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "roster.yaml", "path to the roster file")
	return cmd
}

func advanceCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "advance <tournament-id>",
		Short: "Move a tournament to its next phase, or list what blocks it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tournamentID, err := strconv.Atoi(args[0])
			if err != nil || tournamentID < 1 {
				return fmt.Errorf("invalid tournament id %q", args[0])
			}
			engine, cleanup, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			if dryRun {
				verr, err := engine.Phases.Check(cmd.Context(), tournamentID)
				if err != nil {
					return err
				}
				if verr == nil {
					fmt.Fprintln(out, "ready to advance")
					return nil
				}
				printReasons(cmd, verr)
				return nil
			}

			result, err := engine.Phases.Advance(cmd.Context(), tournamentID)
			var verr *services.ValidationError
			if errors.As(err, &verr) {
				printReasons(cmd, verr)
				return fmt.Errorf("tournament %d cannot advance", tournamentID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "tournament %d: %s -> %s, %d contests generated\n",
				result.TournamentID, result.From, result.To, result.Generated)
			if result.ArchiveLocation != "" {
				fmt.Fprintf(out, "archived at %s\n", result.ArchiveLocation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list blocking reasons")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for STAFF_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func printReasons(cmd *cobra.Command, verr *services.ValidationError) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cannot advance from %s to %s:\n", verr.From, verr.To)
	for _, r := range verr.Reasons {
		if r.CategoryName != "" {
			fmt.Fprintf(out, "  [%s] %s: %s\n", r.CategoryName, r.Rule, r.Message)
		} else {
			fmt.Fprintf(out, "  %s: %s\n", r.Rule, r.Message)
		}
	}
}

// openEngine собирает движок на Postgres без Hub: события CLI никому не
// транслируются, архив пишется только если настроен R2.
func openEngine(ctx context.Context) (*services.Engine, func(), error) {
	cfg, err := config.Load(true)
	if err != nil {
		return nil, nil, err
	}
	repos, conn, err := openStore(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		closeDB(conn)
		return nil, nil, err
	}
	engine := services.NewEngine(repos, nil, archiver, logger)
	return engine, func() { closeDB(conn) }, nil
}
