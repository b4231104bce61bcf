package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/itforum/backend/internal/router"
	"github.com/itchan-dev/itforum/backend/internal/setup"
	"github.com/itchan-dev/itforum/shared/config"
	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/itchan-dev/itforum/shared/logger"
)

var configFolder string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "itforum",
		Short:         "Forum thread read-state and pagination engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configFolder, "config_folder", "backend/config", "path to folder with configs")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(unreadCmd())
	root.AddCommand(pageCmd())
	return root
}

func loadConfig() *config.Config {
	cfg := config.MustLoad(configFolder)
	logger.Initialize(cfg.Public.LogLevel, cfg.Public.LogJSON)
	return cfg
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops HTTP server (health, readiness, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := loadConfig()
			deps, err := setup.SetupDependencies(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			srv := &http.Server{
				Addr:              cfg.Public.HTTPAddr,
				Handler:           router.New(deps.Handler),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Log.Info("server started", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			logger.Log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the storage schema of the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			s, err := setup.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			logger.Log.Info("store is ready", "backend", cfg.Public.Store.Backend)
			return s.Close()
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func unreadCmd() *cobra.Command {
	var (
		uid         int64
		start, stop int
		idsOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "unread",
		Short: "List a user's unread threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup.SetupDependencies(ctx, loadConfig(), true)
			if err != nil {
				return err
			}
			defer deps.Close()

			if idsOnly {
				tids, err := deps.Forum.Unread.UnreadTids(ctx, uid, start, stop)
				if err != nil {
					return err
				}
				return printJSON(cmd, tids)
			}
			result, err := deps.Forum.View.UnreadThreads(ctx, uid, start, stop)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().Int64Var(&uid, "uid", 0, "user id")
	cmd.Flags().IntVar(&start, "start", 0, "first position of the window")
	cmd.Flags().IntVar(&stop, "stop", 19, "last position of the window, -1 for all")
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "print thread ids only")
	return cmd
}

func pageCmd() *cobra.Command {
	var req domain.ThreadPageRequest

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Render one page of a thread as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := setup.SetupDependencies(ctx, loadConfig(), true)
			if err != nil {
				return err
			}
			defer deps.Close()

			req.HasIndex = cmd.Flags().Changed("index")
			page, err := deps.Forum.View.ThreadPage(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		},
	}

	cmd.Flags().Int64Var(&req.Tid, "tid", 0, "thread id")
	cmd.Flags().Int64Var(&req.Uid, "uid", 0, "viewer id, 0 for a guest")
	cmd.Flags().IntVar(&req.Index, "index", 0, "post index to open")
	cmd.Flags().StringVar(&req.Sort, "sort", "", "oldest_to_newest, newest_to_oldest or most_votes")
	cmd.Flags().IntVar(&req.Page, "page", 0, "page number")
	return cmd
}
