package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/tagsync/internal/config"
	"github.com/zjrosen/tagsync/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tagsync",
	Short: "Tag canvas objects and keep views in sync",
	Long: `tagsync attaches free-form tags to objects on a canvas document and manages
them in bulk: create, rename, delete, merge, assign, unassign, find and export.

Run "tagsync serve" to expose the controller to views over websocket and HTTP,
or use the one-shot commands to apply a single change and exit.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging()
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .tagsync/config.yaml, then ~/.config/tagsync/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"write a debug log (also enabled by TAGSYNC_DEBUG)")
	rootCmd.PersistentFlags().StringP("document", "d", "",
		"canvas document (overrides document.path)")
	rootCmd.PersistentFlags().String("store", "",
		"store driver: sqlite, document or memory (overrides store.driver)")

	// Bind flags to viper
	_ = viper.BindPFlag("document.path", rootCmd.PersistentFlags().Lookup("document"))
	_ = viper.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("store"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("server.read_header_timeout", defaults.Server.ReadHeaderTimeout)
	viper.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)
	viper.SetDefault("server.heartbeat", defaults.Server.Heartbeat)
	viper.SetDefault("server.send_buffer", defaults.Server.SendBuffer)
	viper.SetDefault("store.driver", defaults.Store.Driver)
	viper.SetDefault("store.path", defaults.Store.Path)
	viper.SetDefault("document.path", defaults.Document.Path)
	viper.SetDefault("document.watch", defaults.Document.Watch)
	viper.SetDefault("document.debounce", defaults.Document.Debounce)
	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL)
	viper.SetDefault("export.header", defaults.Export.Header)
	viper.SetDefault("export.scope", defaults.Export.Scope)
	viper.SetDefault("index.variant", defaults.Index.Variant)
	viper.SetDefault("assign.unknown_objects", defaults.Assign.UnknownObjects)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("log.level", defaults.Log.Level)

	viper.SetEnvPrefix("TAGSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .tagsync/config.yaml (current directory)
		// 2. ~/.config/tagsync/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.DefaultConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
		// Without a config file the defaults apply.
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: decoding config: %v\n", err)
	}
	if cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = config.DefaultTracesFilePath()
	}
}

const localConfigPath = ".tagsync/config.yaml"

// configPathForWrite is where "config set" edits: the file in use, else the local one.
func configPathForWrite() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return localConfigPath
}

var logCleanup func()

// setupLogging enables the debug log when --debug or TAGSYNC_DEBUG is set.
func setupLogging() error {
	if !debugFlag && os.Getenv("TAGSYNC_DEBUG") == "" {
		return nil
	}
	logPath := cfg.Log.Path
	if logPath == "" {
		logPath = os.Getenv("TAGSYNC_LOG")
	}
	if logPath == "" {
		logPath = "tagsync.log"
	}
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
	}

	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	logCleanup = cleanup
	log.Info(log.CatConfig, "tagsync starting", "version", version, "config", viper.ConfigFileUsed(), "logPath", logPath)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
