package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/server"
	"github.com/hrygo/cinesense/server/runner/embedding"
	"github.com/hrygo/cinesense/store"
	"github.com/hrygo/cinesense/store/db"
)

var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "cinesense",
		Short: "Taste-based movie recommendations: picked-for-you lists and free-text mood discovery.",
		Run:   serve,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the review embedding runner",
		Run:   serve,
	}

	backfillCmd = &cobra.Command{
		Use:   "backfill",
		Short: "Embed every stored review that has text but no embedding, then exit",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runBackfill(cmd.Context()); err != nil {
				slog.Error("backfill failed", "error", err)
				os.Exit(1)
			}
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("cinesense")
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, backfillCmd)
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

// openStore connects to the database and applies the schema.
func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to create db driver: %w", err)
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return storeInstance, nil
}

func serve(cmd *cobra.Command, _ []string) {
	if err := runServe(cmd.Context()); err != nil {
		slog.Error("cinesense exited", "error", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storeInstance, err := openStore(ctx, instanceProfile)
	if err != nil {
		return err
	}

	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		_ = storeInstance.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return fmt.Errorf("failed to start server: %w", err)
	}
	printGreetings(instanceProfile)

	<-c
	s.Shutdown(context.WithoutCancel(ctx))
	return nil
}

func runBackfill(ctx context.Context) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeInstance, err := openStore(ctx, instanceProfile)
	if err != nil {
		return err
	}
	defer storeInstance.Close()

	embedder, err := server.NewEmbeddingService(instanceProfile)
	if err != nil {
		return err
	}

	embedded := embedding.NewRunner(storeInstance, embedder).Backfill(ctx)
	slog.Info("backfill finished", "embedded", embedded)
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("cinesense %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}
	if len(p.Addr) == 0 {
		fmt.Printf("Listening on port %d\n", p.Port)
	} else {
		fmt.Printf("Listening on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		panic(err)
	}
}
