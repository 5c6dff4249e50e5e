package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/twpayne/go-elevation-engine"
	"github.com/twpayne/go-elevation-engine/internal/config"
	"github.com/twpayne/go-elevation-engine/internal/logger"
	"github.com/twpayne/go-elevation-engine/tilestore"
)

// An app holds the state shared by all commands.
type app struct {
	viper   *viper.Viper
	logger  *zap.Logger
	config  *config.Config
	manager *elevation.Manager
	params  elevation.QueryParameters
	closers []io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{
		viper:  viper.New(),
		logger: zap.NewNop(),
	}

	rootCmd := &cobra.Command{
		Use:           "elevation",
		Short:         "Query elevation sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	persistentFlags := rootCmd.PersistentFlags()
	persistentFlags.String("config", "", "config file")
	persistentFlags.String("log-level", "", "log level (debug|info|warn|error)")
	persistentFlags.String("eu-dem-path", "", "path to EU-DEM data")
	persistentFlags.StringSlice("tilestore", nil, "path to tile store")
	persistentFlags.StringSlice("type", nil, "chunk types to accept")
	persistentFlags.Bool("interpolate", false, "interpolate between samples")
	_ = a.viper.BindPFlag("config", persistentFlags.Lookup("config"))
	_ = a.viper.BindPFlag("log_level", persistentFlags.Lookup("log-level"))
	_ = a.viper.BindPFlag("eu_dem_path", persistentFlags.Lookup("eu-dem-path"))
	_ = a.viper.BindPFlag("tilestore", persistentFlags.Lookup("tilestore"))
	_ = a.viper.BindPFlag("type", persistentFlags.Lookup("type"))
	_ = a.viper.BindPFlag("interpolate", persistentFlags.Lookup("interpolate"))
	_ = a.viper.BindEnv("eu_dem_path", "EU_DEM_PATH")
	_ = a.viper.BindEnv("config", "ELEVATION_CONFIG")

	rootCmd.AddCommand(
		newPointCmd(a),
		newPointsCmd(a),
		newChunksCmd(a),
		newSourcesCmd(a),
	)
	return rootCmd
}

// init reads the configuration and registers the configured sources.
func (a *app) init() error {
	cfg := &config.Config{}
	if configFile := a.viper.GetString("config"); configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return err
		}
	}
	if logLevel := a.viper.GetString("log_level"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if euDEMPath := a.viper.GetString("eu_dem_path"); euDEMPath != "" {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{
			Type: config.SourceTypeEUDEM,
			Path: euDEMPath,
		})
	}
	for _, path := range a.viper.GetStringSlice("tilestore") {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{
			Type: config.SourceTypeTileStore,
			Path: path,
		})
	}
	if types := a.viper.GetStringSlice("type"); len(types) > 0 {
		cfg.Query.Types = types
	}
	if a.viper.GetBool("interpolate") {
		cfg.Query.Interpolate = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.config = cfg

	var err error
	if a.logger, err = logger.New(cfg.LogLevel); err != nil {
		return err
	}
	if a.params, err = cfg.Query.Parameters(); err != nil {
		return err
	}

	a.manager = elevation.NewManager(elevation.WithLogger(a.logger))
	for _, sourceConfig := range cfg.Sources {
		source, err := a.newSource(sourceConfig)
		if err != nil {
			return errors.Join(err, a.close())
		}
		if err := a.manager.Register(source); err != nil {
			return errors.Join(err, a.close())
		}
	}
	return nil
}

func (a *app) newSource(sourceConfig config.SourceConfig) (elevation.Source, error) {
	switch sourceConfig.Type {
	case config.SourceTypeEUDEM:
		var options []elevation.GeoTIFFTileSetOption
		if sourceConfig.CacheSize > 0 {
			options = append(options, elevation.WithCacheSize(sourceConfig.CacheSize))
		}
		return elevation.NewEUDEM(os.DirFS(sourceConfig.Path), options...)
	case config.SourceTypeTileStore:
		store, err := tilestore.Open(sourceConfig.Path, tilestore.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		var options []elevation.TiledSourceOption
		if sourceConfig.CacheSize > 0 {
			options = append(options, elevation.WithTiledSourceCacheSize(sourceConfig.CacheSize))
		}
		return store.Source(options...)
	default:
		return nil, fmt.Errorf("%s: unknown source type", sourceConfig.Type)
	}
}

func (a *app) hints() *elevation.Hints {
	return &elevation.Hints{
		Interpolate: a.config.Query.Interpolate,
	}
}

func (a *app) close() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer.Close())
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
