// Command voicemod runs the moderated voice agent: the session and guidance
// API (serve) and a terminal client for live calls (call).
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/version"
)

const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
	flagVerbose = "verbose"
)

var rootCmd = &cobra.Command{
	Use:           "voicemod",
	Short:         "Live voice agent with a silent moderator",
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `voicemod runs a realtime voice conversation between a customer and an AI
agent while a moderator polls the transcript and injects coaching into the
agent's next turn.

Configuration is read from an optional YAML file, then from the environment
(a .env file is loaded first when present).`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnvFile(viper.GetString(flagEnvFile)); err != nil {
			return err
		}
		if viper.GetBool(flagVerbose) {
			logger.SetVerbose(true)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP(flagConfig, "c", "", "Configuration file path (YAML)")
	rootCmd.PersistentFlags().String(flagEnvFile, ".env", "Environment file loaded before configuration")
	rootCmd.PersistentFlags().BoolP(flagVerbose, "v", false, "Enable debug logging")

	_ = viper.BindPFlag(flagConfig, rootCmd.PersistentFlags().Lookup(flagConfig))
	_ = viper.BindPFlag(flagEnvFile, rootCmd.PersistentFlags().Lookup(flagEnvFile))
	_ = viper.BindPFlag(flagVerbose, rootCmd.PersistentFlags().Lookup(flagVerbose))

	viper.SetEnvPrefix("VOICEMOD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString(flagConfig))
	if err != nil {
		return nil, err
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Fields)
	if viper.GetBool(flagVerbose) {
		logger.SetVerbose(true)
	}
	return cfg, nil
}

func main() {
	rootCmd.SetVersionTemplate(version.GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
