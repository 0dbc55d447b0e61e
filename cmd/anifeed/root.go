package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "anifeed",
	Short: "Cache your anime list with matching torrents",
	Long: `anifeed keeps a local SQLite cache of an AniList or MyAnimeList
user's anime list together with torrent candidates found on Nyaa.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.anifeed.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "path of the sqlite cache (default ./anifeed.db)")
	rootCmd.PersistentFlags().String("log-level", "", "trace, debug, info, warn or error")
	rootCmd.PersistentFlags().StringP("user", "u", "", "profile user name")
	rootCmd.PersistentFlags().StringP("source", "s", "", "profile source: anilist or mal")

	// Bind flags to viper
	viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("source", rootCmd.PersistentFlags().Lookup("source"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in home directory and current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")

		if _, err := os.Stat("config.yaml"); err != nil {
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(home)
				viper.SetConfigName(".anifeed")
			}
		}
	}

	// Environment variables, nested keys use underscores: ANIFEED_NYAA_BASE_URL
	viper.SetEnvPrefix("ANIFEED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
