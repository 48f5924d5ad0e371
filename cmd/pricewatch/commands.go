package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/config"
	"pricewatch/internal/handlers"
	"pricewatch/internal/pagination"
)

const shutdownTimeout = 10 * time.Second

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runCmd(flags *globalFlags) *cobra.Command {
	var (
		seed   bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "run [alias...]",
		Short: "Run one tracking cycle and exit",
		Long: `Run visits every configured store once, or only the stores of the given
product aliases. Exit status is 0 when every store succeeded, 2 when any
store failed or the cycle was interrupted, and 1 on startup errors.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signalContext(cmd)
			defer stop()

			if seed {
				res, err := a.Seed(ctx, "")
				if err != nil {
					return fmt.Errorf("seed catalog: %w", err)
				}
				a.Log.Infow("catalog seeded", "products", res.Products, "stores", res.Stores)
			}

			if a.Config.RunTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.Config.RunTimeout)
				defer cancel()
			}

			report := a.Tracker.RunAll(ctx, args...)
			if err := printReport(cmd.OutOrStdout(), report, asJSON); err != nil {
				return err
			}

			switch {
			case report.Error != "":
				return &exitError{code: exitFatal, msg: report.Error}
			case report.Failed > 0:
				return &exitError{code: exitStoreFailed, msg: fmt.Sprintf("%d of %d stores failed", report.Failed, report.Processed)}
			case report.Cancelled:
				return &exitError{code: exitStoreFailed, msg: fmt.Sprintf("cycle interrupted, %d stores skipped", report.Skipped)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", true, "Seed the catalog from the products file first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the cycle report as JSON")
	return cmd
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run cycles on an interval and serve status over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signalContext(cmd)
			defer stop()

			if _, err := a.Seed(ctx, ""); err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}

			if a.Config.Env == "production" {
				gin.SetMode(gin.ReleaseMode)
			}

			sched := a.Scheduler()
			router := handlers.NewRouter(handlers.RouterConfig{
				Products: handlers.NewProductHandler(a.Catalog),
				Status:   handlers.NewStatusHandler(sched.Status, Version),
				Metrics:  a.Metrics.Handler(),
				APIKey:   a.Config.APIKey,
				Logger:   a.Log.Named("http"),
			})
			srv := &http.Server{
				Addr:              ":" + a.Config.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			var watcher *config.ProductsWatcher
			if watch {
				watcher, err = config.NewProductsWatcher(a.Config.ProductsFile, 0, a.Log.Named("products"))
				if err != nil {
					return fmt.Errorf("watch products file: %w", err)
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				sched.Run(gctx)
				return nil
			})

			if watcher != nil {
				g.Go(func() error {
					watcher.Run(gctx, a.Reseed)
					return nil
				})
			}

			g.Go(func() error {
				a.Log.Infow("Starting HTTP server", "port", a.Config.Port)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			a.Log.Info("Shutdown complete")
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "Reseed the catalog when the products file changes")
	return cmd
}

func seedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply the products file to the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Seed(cmd.Context(), "")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d products, %d presentations, %d stores\n",
				res.Products, res.Presentations, res.Stores)
			return err
		},
	}
}

func historyCmd(flags *globalFlags) *cobra.Command {
	var (
		page   pagination.PageRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history <alias>",
		Short: "Show recorded prices for a product, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Catalog.HistoryByAlias(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), res, asJSON)
		},
	}

	cmd.Flags().IntVar(&page.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&page.PageSize, "page-size", pagination.DefaultPageSize, "Rows per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func bestCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "best <alias>",
		Short: "Show the lowest price per unit seen at each store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			best, err := a.Catalog.BestPricesPerUnit(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printBest(cmd.OutOrStdout(), best, asJSON)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum stores to show (0 uses the default of 10)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func productsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List, rename and delete tracked products",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List products with their presentations and stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			products, err := a.Catalog.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			return printProducts(cmd.OutOrStdout(), products, asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	rename := &cobra.Command{
		Use:   "rename <alias> <name>",
		Short: "Change a product's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			p, err := a.Catalog.RenameProduct(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", p.Alias, p.Name)
			return err
		},
	}

	var cascade bool
	del := &cobra.Command{
		Use:   "delete <alias>",
		Short: "Delete a product; --cascade also removes its price history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Catalog.DeleteProduct(cmd.Context(), args[0], cascade)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s: %d presentations, %d stores, %d observations\n",
				args[0], res.Presentations, res.Stores, res.Observations)
			return err
		},
	}
	del.Flags().BoolVar(&cascade, "cascade", false, "Also delete recorded prices")

	cmd.AddCommand(list, rename, del)
	return cmd
}
