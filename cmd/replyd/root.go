package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"replyd/internal/config"
)

// newRootCmd builds the command tree. Each invocation gets its own viper
// instance so tests can run commands side by side.
func newRootCmd() *cobra.Command {
	v := newViper()
	root := &cobra.Command{
		Use:           "replyd",
		Short:         "Conversation inference server for per-user models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (.yaml, .yml, .json, .toml); env REPLYD_CONFIG")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	mustBind(v, "config", root.PersistentFlags().Lookup("config"))
	mustBind(v, "log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCmd(v), newCorpusCmd(v), newModelsCmd(v), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the replyd version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "replyd", version)
			return err
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("REPLYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// mustBind binds a flag to a config key. It only fails for a nil flag,
// which is a programming error.
func mustBind(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

// bindFlags binds the running command's flags to config keys. Binding
// happens per invocation because several commands share a key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the config file, if any, then applies flag and
// REPLYD_* environment overrides and fills defaults.
func loadConfig(v *viper.Viper) (config.Config, error) {
	var cfg config.Config
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	applyOverrides(v, &cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}
