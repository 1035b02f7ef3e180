// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisMcGann/ionnet/pkg/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Persistent flags
	cfgFile  string
	logFile  string
	logLevel string

	logger    *slog.Logger
	closeLog  = func() error { return nil }
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "ionnet",
	Short: "ionnet - Ion identity networking for LC-MS feature tables",
	Long: `ionnet groups rows of an aligned LC-MS feature table into ion identity networks:
sets of adducts, in-source fragments and multimers of one neutral molecule.

Features:
- Pairwise matching of correlated rows against a library of adducts and modifications
- Network assembly with a consensus neutral mass per network
- Optional MS/MS verification of multimers and neutral losses
- Conflict resolution so every row ends up in at most one network
- Results written to a SQLite database`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		level, err := logging.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			return err
		}
		logger, closeLog = logging.Setup(viper.GetString("log_file"), level)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ionnet.yaml or ~/.config/ionnet/ionnet.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(validateCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ionnet")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ionnet"))
		}
	}

	viper.SetEnvPrefix("IONNET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := setDefaults(viper.GetViper()); err != nil {
		configErr = err
		return
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		configErr = fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
	}
}
