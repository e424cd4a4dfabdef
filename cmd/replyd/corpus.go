package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"replyd/internal/fallback"
	"replyd/internal/persist"
	"replyd/internal/registry"
)

func newCorpusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Manage fallback corpora",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("corpus requires a subcommand: import")
		},
	}
	var (
		user    string
		replace bool
	)
	imp := &cobra.Command{
		Use:     "import <file>",
		Short:   "Import a corpus file (.yaml, .json, .toml) into the SQLite store",
		Example: "  replyd corpus import --user u-42 corpus/u-42.yaml",
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), map[string]string{"persist.sqlite_path": "db"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			entries, err := fallback.LoadFile(args[0])
			if err != nil {
				return err
			}
			store, err := persist.OpenSQLite(cfg.Persist.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.ImportCorpus(cmd.Context(), user, entries, replace)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries for %s into %s\n", n, user, cfg.Persist.SQLitePath)
			return err
		},
	}
	imp.Flags().StringVar(&user, "user", "", "Owner of the corpus")
	imp.Flags().BoolVar(&replace, "replace", false, "Replace the user's existing entries")
	imp.Flags().String("db", "", "SQLite database path (default persist.sqlite_path)")
	cmd.AddCommand(imp)
	return cmd
}

func newModelsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List per-user models found in the models directory",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(v, cmd.Flags(), map[string]string{"runtime.models_dir": "models-dir"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cfg.Runtime.ModelsDir == "" {
				return fmt.Errorf("runtime.models_dir is not set")
			}
			models, err := registry.LoadDir(cfg.Runtime.ModelsDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", m.UserID, m.Version, m.Path); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("models-dir", "", "Directory of per-user <user>.gguf models")
	return cmd
}
