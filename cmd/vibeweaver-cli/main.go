// vibeweaver CLI — инструмент командной строки для управления
// правилами сессий и отправки команд планировщику.
//
// Использование:
//
//	vibeweaver [--sqlite PATH | --db-url DSN] [--rabbitmq-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	rules     Управление правилами в хранилище
//	stats     Статистика времени генерации
//	simulate  Прогон диапазона долей через правила сессии
//	send      Команды работающему планировщику
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/vibeweaver/internal/cli"
	"github.com/shaiso/vibeweaver/internal/mq"
	"github.com/shaiso/vibeweaver/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var sqlitePath string
	var dbURL string
	var mqURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "vibeweaver",
		Short:         "vibeweaver CLI — session rule scheduler tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", os.Getenv("SQLITE_PATH"), "SQLite database file (overrides --db-url)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", os.Getenv("DB_URL"), "PostgreSQL DSN")
	rootCmd.PersistentFlags().StringVar(&mqURL, "rabbitmq-url", os.Getenv("RABBITMQ_URL"), "RabbitMQ URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	storeFn := func(ctx context.Context) (cli.Store, error) {
		return cli.OpenStore(ctx, sqlitePath, dbURL)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	publisherFn := func(context.Context) (cli.CommandPublisher, func(), error) {
		logger := telemetry.SetupLoggerWith(os.Stderr, "WARN", "text")
		conn, err := mq.NewConnection(mqURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return mq.NewPublisher(conn, logger), func() { conn.Close() }, nil
	}

	rootCmd.AddCommand(
		cli.NewRulesCmd(storeFn, outputFn),
		cli.NewStatsCmd(storeFn, outputFn),
		cli.NewSimulateCmd(storeFn, outputFn),
		cli.NewSendCmd(publisherFn, outputFn),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
