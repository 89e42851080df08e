package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/licenciador/licensing-api/internal/app"
)

var version = "dev"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "licensing-api",
		Short: "Licensing backend",
		Long:  `licensing-api manages operator licenses, license checks and per-tenant instances.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and seed the super user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), configPath)
		},
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue licenses once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Sweep(cmd.Context(), configPath)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("licensing-api version %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "", "path to configuration file")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd, versionCmd)
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return app.RunServer(ctx, configPath)
}

func main() {
	if errEnv := godotenv.Load(); errEnv != nil && !os.IsNotExist(errEnv) {
		log.Warnf("loading .env: %v", errEnv)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
