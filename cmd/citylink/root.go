package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/citylink/internal/cli"
	"github.com/aretw0/citylink/internal/config"
	"github.com/aretw0/citylink/internal/profile"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "citylink",
	Short: "Trade resources with another player through a shared store",
	Long: `citylink pairs two players under a short session code and lets them
exchange trade offers through a shared key-value store (a directory, Redis,
or process memory).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx := cli.NewSignalContext(context.Background())
	defer ctx.Cancel()

	err := cli.HandleExecutionError(rootCmd.ExecuteContext(ctx))
	if sig := ctx.Signal(); sig != nil {
		fmt.Fprintf(os.Stderr, ">>> Received %s, stopped.\n", sig)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default .citylink/config.yaml)")
	pf.String("backend", config.BackendFile, "Shared store backend: memory, file or redis")
	pf.String("dir", ".citylink/sessions", "Session directory for the file backend")
	pf.String("prefix", domain.DefaultKeyPrefix, "Key prefix of session records")
	pf.String("profile", profile.DefaultPath, "Local profile file")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
	pf.String("redis-addr", "localhost:6379", "Redis address for the redis backend")
	pf.Bool("redis-lock", false, "Guard session writes with a Redis lock")
	pf.String("passphrase", "", "Encrypt session records with a key derived from this passphrase")
	pf.String("policy", "atomic", "How accepted trades apply: atomic or best-effort")
	pf.Bool("optimistic", false, "Reject writes based on a stale session version")

	bindings := map[string]string{
		"store.backend":         "backend",
		"store.dir":             "dir",
		"store.prefix":          "prefix",
		"store.optimistic":      "optimistic",
		"profile.path":          "profile",
		"log.level":             "log-level",
		"redis.addr":            "redis-addr",
		"redis.lock":            "redis-lock",
		"encryption.passphrase": "passphrase",
		"apply.policy":          "policy",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// withApp opens the local participant, runs fn and closes it, saving the profile.
func withApp(cmd *cobra.Command, fn func(*cli.App) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := cli.Open(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()
	return fn(app)
}
