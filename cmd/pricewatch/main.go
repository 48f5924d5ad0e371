// Package main provides the pricewatch binary: it tracks retailer prices for
// a catalog of products and alerts on drops and discounts.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"pricewatch/internal/app"
	"pricewatch/internal/config"
	"pricewatch/internal/database"
	"pricewatch/internal/logger"
)

const (
	Version = "0.3.0"
	appName = "pricewatch"
)

// Exit codes of the run command.
const (
	exitOK          = 0
	exitFatal       = 1
	exitStoreFailed = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitFatal)
		}
	}()

	err := rootCmd().Execute()
	logger.Sync()

	var ee *exitError
	switch {
	case err == nil:
		os.Exit(exitOK)
	case errors.As(err, &ee):
		if ee.msg != "" {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", ee.msg)
		}
		os.Exit(ee.code)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	productsFile string
	logLevel     string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Track retailer prices and alert on drops",
		Long: `Pricewatch visits every store URL in the product catalog, records the
observed price and sends an alert when the official price drops by 10% or
more, or when the store shows a discount.

Products are declared in a YAML file (PRODUCTS_FILE) and seeded into the
database; all other settings come from the environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.productsFile, "products", "", "Products file (overrides PRODUCTS_FILE)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(&flags),
		serveCmd(&flags),
		seedCmd(&flags),
		historyCmd(&flags),
		bestCmd(&flags),
		productsCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

// setup loads configuration, initializes the process logger and builds the
// application context. Any error here is fatal.
func setup(flags *globalFlags) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.productsFile != "" {
		cfg.ProductsFile = flags.productsFile
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	log := logger.Init(cfg.Env, cfg.LogLevel)

	dbCfg, err := database.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}

	a, err := app.New(cfg, dbCfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Log.Warnw("shutdown error", "error", err)
	}
}
