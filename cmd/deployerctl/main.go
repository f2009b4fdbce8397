// deployerctl — инструмент командной строки для управления
// сервисами и deployments через HTTP API deployer-server.
//
// Использование:
//
//	deployerctl [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	service       Управление сервисами контейнера
//	deployment    Развёртывание и снятие архивов
//	capabilities  Связанные capabilities
//	diagnostics   Отчёт о проблемах контейнера
//	events        Поток событий из RabbitMQ
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Deployer/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "deployerctl",
		Short:         "deployerctl — control a deployer server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8080"
	if v := os.Getenv("DEPLOYER_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewServiceCmd(clientFn, outputFn),
		cli.NewDeploymentCmd(clientFn, outputFn),
		cli.NewCapabilityCmd(clientFn, outputFn),
		cli.NewDiagnosticsCmd(clientFn, outputFn),
		cli.NewEventsCmd(outputFn),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
