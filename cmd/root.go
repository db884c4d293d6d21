package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"longdoc-translator/internal/logger"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "longdoc",
	Short: "Long-document translation pipeline",
	Long: `Translates long PDF documents block by block while preserving layout,
formulas, and terminology.

The pipeline extracts typed text blocks, protects formula spans with
placeholder tokens, translates each block through an OpenAI-compatible
endpoint, enforces glossary terminology, and writes the translation back
onto a copy of the source PDF.

Use "longdoc translate --help" for translation options.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logger.LevelInfo
		if verbose {
			level = logger.LevelDebug
		}
		return logger.Init(&logger.Config{
			Level:         level,
			LogFilePath:   viper.GetString("log_file"),
			EnableConsole: true,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func Execute() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.longdoc.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("api-key", "", "API key for the translation backend")
	rootCmd.PersistentFlags().String("base-url", "", "base URL for an OpenAI-compatible endpoint")
	rootCmd.PersistentFlags().String("model", "", "model name for the translation backend")
	rootCmd.PersistentFlags().String("db", defaultDBPath(), "path to the glossary and memory database")

	viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	viper.BindEnv("api_key", "OPENAI_API_KEY")
	viper.BindEnv("base_url", "OPENAI_BASE_URL")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".longdoc")
		}
	}

	viper.SetEnvPrefix("LONGDOC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "longdoc.db"
	}
	return home + "/.longdoc.db"
}
