// Package main provides the entry point for the narrator CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/synth"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	debug             bool
	mockAudio         bool
	engineName        string
	volume            float64

	// cfg is the effective configuration, loaded before any command runs.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "narrator",
		Short: "Read text aloud with a local neural voice",
		Long: paragraph(
			fmt.Sprintf("\nRead text aloud with a local neural voice, %s.", keyword("pause and resume anywhere")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		PersistentPreRunE: loadConfig,
	}
)

// loadConfig merges the config file, environment and flags into cfg.
func loadConfig(cmd *cobra.Command, _ []string) error {
	e, err := config.ParseEnv()
	if err != nil {
		return err
	}

	if configFile != "" {
		if err := config.ReadFile(viper.GetViper(), configFile); err != nil {
			return err
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	if e.MockAudio && !cmd.Flags().Changed("mock-audio") {
		viper.Set("audio.mock", true)
	}
	if debug || e.Debug {
		log.SetLevel(log.DebugLevel)
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.BoolVar(&debug, "debug", false, "log at debug level")
	flags.BoolVar(&mockAudio, "mock-audio", false, "play into memory instead of the audio device")
	flags.StringVarP(&engineName, "engine", "e", "", fmt.Sprintf("speech engine (%s)", joinEngines()))
	flags.Float64Var(&volume, "volume", 1.0, "output volume from 0.0 to 2.0")

	// Config bindings
	_ = viper.BindPFlag("audio.mock", flags.Lookup("mock-audio"))
	_ = viper.BindPFlag("synth.engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("audio.volume", flags.Lookup("volume"))

	rootCmd.AddCommand(serveCmd, sayCmd, readCmd, cacheCmd, configCmd, manCmd)
}

func joinEngines() string {
	return strings.Join(synth.Engines, "/")
}

func tryLoadConfigFromDefaultPlaces() {
	e, err := config.ParseEnv()
	if err != nil {
		log.Warn("Could not parse environment", "err", err)
	}
	dirs, err := config.ConfigDirs(e)
	if err != nil || len(dirs) == 0 {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	config.Configure(viper.GetViper(), dirs)
	if err := config.ReadFile(viper.GetViper(), ""); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}
	defaultConfigFile = filepath.Join(dirs[0], config.FileName)
}
