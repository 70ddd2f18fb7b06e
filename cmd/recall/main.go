package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/internal/version"
	"github.com/hrygo/recall/server"
	"github.com/hrygo/recall/store"
	"github.com/hrygo/recall/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "recall",
		Short: `A memory engine for chatting with local Ollama models. Conversations stay bounded, summarized and searchable.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile, err := loadProfile()
			if err != nil {
				slog.Error("failed to load profile", "error", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			storeInstance, err := openStore(ctx, instanceProfile)
			if err != nil {
				slog.Error("failed to open store", "error", err)
				os.Exit(1)
			}

			s, err := server.NewServer(instanceProfile, storeInstance)
			if err != nil {
				slog.Error("failed to create server", "error", err)
				_ = storeInstance.Close()
				os.Exit(1)
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				slog.Error("failed to start server", "error", err)
				s.Shutdown(ctx)
				os.Exit(1)
			}
			printGreetings(instanceProfile)

			<-c
			s.Shutdown(ctx)
		},
	}
)

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "jsonfile")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "jsonfile", "storage driver: jsonfile, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "storage location: directory, sqlite file or postgres dsn")
	rootCmd.PersistentFlags().String("ollama-base-url", "", "base URL of the Ollama server")
	rootCmd.PersistentFlags().String("chat-model", "", "default chat model")
	rootCmd.PersistentFlags().String("summary-model", "", "default summary model")
	rootCmd.PersistentFlags().String("embedding-model", "", "embedding model")
	rootCmd.PersistentFlags().String("agents-file", "", "YAML file with agent presets seeded on start")

	for _, name := range []string{
		"mode", "addr", "port", "data", "driver", "dsn",
		"ollama-base-url", "chat-model", "summary-model", "embedding-model", "agents-file",
	} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("recall")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(serveCmd, chatCmd, versionCmd)
}

// loadProfile reads flags and RECALL_* variables. Settings without a flag
// come from profile.FromEnv.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:           viper.GetString("mode"),
		Addr:           viper.GetString("addr"),
		Port:           viper.GetInt("port"),
		Data:           viper.GetString("data"),
		Driver:         viper.GetString("driver"),
		DSN:            viper.GetString("dsn"),
		OllamaBaseURL:  viper.GetString("ollama-base-url"),
		ChatModel:      viper.GetString("chat-model"),
		SummaryModel:   viper.GetString("summary-model"),
		EmbeddingModel: viper.GetString("embedding-model"),
		AgentsFile:     viper.GetString("agents-file"),
	}
	instanceProfile.FromEnv()
	instanceProfile.Version = version.GetCurrentVersion(instanceProfile.Mode)
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

// openStore opens and migrates the configured store and seeds the agent presets.
func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	if _, err := storeInstance.SeedAgents(ctx, instanceProfile.AgentsFile); err != nil {
		_ = storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

func printGreetings(instanceProfile *profile.Profile) {
	fmt.Printf("Recall %s started successfully!\n", instanceProfile.Version)
	fmt.Printf("Storage: %s (%s)\n", instanceProfile.Driver, instanceProfile.DSN)
	fmt.Printf("Ollama: %s, chat model %s, embedding model %s\n",
		instanceProfile.OllamaBaseURL, instanceProfile.ChatModel, instanceProfile.EmbeddingModel)
	if len(instanceProfile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", instanceProfile.Port)
		fmt.Printf("Accessing Recall API on http://localhost:%d/api/v1\n", instanceProfile.Port)
	} else {
		fmt.Printf("Server running on address %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
		fmt.Printf("Accessing Recall API on http://%s:%d/api/v1\n", instanceProfile.Addr, instanceProfile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
