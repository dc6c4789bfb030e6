package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-session/internal/app"
	"github.com/dropDatabas3/hellojohn-session/internal/config"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/validation"
)

var version = "dev"

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("no se pudo leer .env: %v", err)
	}

	configPath := envOr("CONFIG_PATH", "")

	root := &cobra.Command{
		Use:           "hellojohn-session",
		Short:         "Coordinador de identidad y sesión con identity provider local",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Ruta al YAML de configuración (env CONFIG_PATH)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el emulador, el listener de sesión y la API HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "hellojohn-session",
				Version:     version,
			})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				logger.L().Error("wiring failed", logger.Err(err))
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}

	checkEmailCmd := &cobra.Command{
		Use:   "check-email <email>",
		Short: "Valida y normaliza un email como lo hace el ingreso por link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validation.IsValidEmailFormat(args[0]) {
				return fmt.Errorf("email inválido: %q", args[0])
			}
			n := validation.NormalizeEmail(args[0])
			fmt.Fprintln(cmd.OutOrStdout(), n)
			if validation.IsPrivateRelayEmail(n) {
				fmt.Fprintln(cmd.OutOrStdout(), "private relay")
			}
			return nil
		},
	}

	firstNameCmd := &cobra.Command{
		Use:   "first-name <email>",
		Short: "Muestra el nombre que se propone a partir del email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), validation.EmailFirstName(args[0]))
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(serveCmd, checkEmailCmd, firstNameCmd, versionCmd)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
