package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"archivist/internal/config"
	"archivist/internal/domain/record"
	"archivist/internal/infrastructure/metrics"
	"archivist/internal/infrastructure/storage"
	"archivist/internal/utils/logger"
)

const (
	collectionSnapshots = "snapshots"
	collectionVersions  = "versions"
)

var (
	cfgFile  string
	cfg      *config.Config
	log      *slog.Logger
	registry *prometheus.Registry
	recorder *record.Recorder
)

var rootCmd = &cobra.Command{
	Use:   "archivist",
	Short: "Archivist - история отслеживаемых юридических документов",
	Long: `Archivist хранит снимки (исходный контент документа) и версии
(отфильтрованный markdown) в git репозитории или в документной базе.

Запись сохраняется только если ее содержимое отличается от последней
записи того же документа.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	err := rootCmd.Execute()
	if recorder != nil {
		// PostRun не вызывается, если команда вернула ошибку
		if ferr := teardownApp(rootCmd, nil); ferr != nil {
			log.Warn("failed to finalize storage", "error", ferr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log = logger.New(cfg.Env, cfg.Logger.Level)

	registry = prometheus.NewRegistry()
	recorder, err = storage.NewRecorder(cfg.Recorder.Snapshots, cfg.Recorder.Versions, log,
		record.WithMetrics(metrics.New(registry)))
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}

	if err := recorder.Initialize(commandContext(cmd)); err != nil {
		recorder = nil
		return fmt.Errorf("initialize storage: %w", err)
	}
	return nil
}

func teardownApp(cmd *cobra.Command, _ []string) error {
	if recorder == nil {
		return nil
	}
	err := recorder.Finalize(commandContext(cmd))
	recorder = nil
	if err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// repository возвращает хранилище коллекции по имени
func repository(collection string) (record.Repository, error) {
	switch collection {
	case collectionSnapshots:
		return recorder.Snapshots(), nil
	case collectionVersions:
		return recorder.Versions(), nil
	default:
		return nil, fmt.Errorf("unknown collection %q, expected %s or %s", collection, collectionSnapshots, collectionVersions)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл (yaml)")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(serveCmd)
}
