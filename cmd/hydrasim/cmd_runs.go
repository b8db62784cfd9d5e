package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/seraphin/internal/api"
	"github.com/talgya/seraphin/internal/config"
	"github.com/talgya/seraphin/internal/dashboard"
	"github.com/talgya/seraphin/internal/persistence"
	"github.com/talgya/seraphin/internal/render"
)

// openStore loads config, applies --db and opens the run store.
func openStore(cmd *cobra.Command) (*config.Config, *persistence.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Storage.Path, _ = cmd.Flags().GetString("db")
	}
	if cfg.Storage.Path == "" {
		return nil, nil, errors.New("no run store configured (set storage.path, HYDRA_DB or --db)")
	}
	db, err := persistence.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}
	return cfg, db, nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			fmt.Fprint(cmd.OutOrStdout(), dashboard.FormatRuns(runs))
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite run store path")
	cmd.Flags().Int("limit", 20, "Maximum runs to list")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the dashboard of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			rep, err := db.GetRun(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(out, rep)
			}
			fmt.Fprint(out, dashboard.Format(rep))

			if len(rep.Specialties) > 0 {
				names := make([]string, 0, len(rep.Specialties))
				for name := range rep.Specialties {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintln(out, "\nSpecialty outcomes:")
				for _, name := range names {
					s := rep.Specialties[name]
					fmt.Fprintf(out, "  %-22s %6d ok %6d miss  %5.1f%%\n", name, s.Success, s.Fail, 100*s.Fraction())
				}
			}

			if doRender, _ := cmd.Flags().GetBool("render"); doRender {
				path, err := render.Save(rep, renderOptions(cfg), cfg.Render.Dir, rep.FinishedAt)
				if err != nil {
					return fmt.Errorf("render: %w", err)
				}
				fmt.Fprintf(out, "\nJulia hydra written to %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite run store path")
	cmd.Flags().Bool("render", false, "Also write the run's Julia hydra PNG")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over HTTP",
		Long: `Serve the read-only run API.

POST /api/v1/simulate is enabled when HYDRA_ADMIN_KEY is set and requires
"Authorization: Bearer <key>".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}

			srv := &api.Server{
				DB:                db,
				Port:              cfg.API.Port,
				AdminKey:          os.Getenv("HYDRA_ADMIN_KEY"),
				Render:            renderOptions(cfg),
				RenderRatePerHour: cfg.API.RenderRatePerHour,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "SQLite run store path")
	cmd.Flags().Int("port", 0, "HTTP port")
	return cmd
}

func renderOptions(cfg *config.Config) render.Options {
	return render.Options{
		Width:   cfg.Render.Width,
		Height:  cfg.Render.Height,
		MaxIter: cfg.Render.MaxIter,
		C:       render.DefaultC,
	}
}
