// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/compomics/fragmentation-analyzer/cmd/fragimport/config"
)

var (
	// Flags for all commands
	configFile string
	verbose    bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "fragimport",
	Short: "Import Mascot and OMSSA identifications into fragmentation datasets",
	Long: `fragimport reads peptide identification results (Mascot DAT, OMSSA OMX)
and writes a fragmentation dataset folder: identifications.txt,
fragmentIons.txt and one peak list per identification under spectra/.

Every flag can also be set in a fragimport.yaml config file (--config)
or through FRAGIMPORT_* environment variables, e.g. FRAGIMPORT_MASCOT_CONFIDENCE.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
}

func Execute() error {
	defer func() { logger.Sync() }()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./fragimport.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose development logging")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)
}

// initConfig reads in the config file and environment variables
func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("fragimport")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("FRAGIMPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config file: %v\n", err)
		}
	}
}

func setupLogger(cmd *cobra.Command, args []string) error {
	var err error
	if viper.GetBool("verbose") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

// loadConfig decodes the current viper settings
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
