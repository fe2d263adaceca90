// Command geoprep runs the vector preprocessing operations from the shell.
//
//	geoprep clean roads.gpkg
//	geoprep reproject roads.gpkg WGS84
//	geoprep run rivers.geojson --step clean --step reproject:NAD83_CONUS_ALBERS --step sinuosity
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tingold/geoprep"
)

// app holds the flag values and the state built from them before a
// command runs.
type app struct {
	configPath  string
	envFiles    []string
	engine      string
	workspace   string
	regionsFile string
	workers     int
	logLevel    string
	logJSON     bool
	logDir      string

	cfg    geoprep.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "geoprep",
		Short: "Prepare vector datasets for analysis",
		Long: `geoprep cleans field names, reprojects to named regions, repairs
invalid geometries, drops Z and M ordinates and computes line sinuosity
on GeoJSON, FlatGeobuf and GeoPackage datasets.

Configuration is read from --config, then .env files, then GEOPREP_*
environment variables. Flags override all of them.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "geoprep.yaml", "YAML configuration file")
	pf.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env when present)")
	pf.StringVarP(&a.engine, "engine", "e", "auto", "geometry engine: auto, geos or orb")
	pf.StringVarP(&a.workspace, "workspace", "w", "", "write outputs under <workspace>/<engine> instead of next to the input")
	pf.StringVar(&a.regionsFile, "regions", "", "YAML region table replacing the built-in one")
	pf.IntVarP(&a.workers, "workers", "j", 4, "per-feature workers")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVar(&a.logJSON, "log-json", false, "log as JSON")
	pf.StringVar(&a.logDir, "log-dir", "", "also write "+geoprep.LogFile+" to this directory")

	root.AddCommand(
		a.cleanCmd(),
		a.reprojectCmd(),
		a.repairCmd(),
		a.to2DCmd(),
		a.sinuosityCmd(),
		a.runCmd(),
		a.regionsCmd(),
		a.enginesCmd(),
		a.formatsCmd(),
		a.configCmd(),
		a.sampleCmd(),
	)
	return root
}

// setup loads the configuration, applies the flags the user set and
// builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := geoprep.LoadConfig(a.configPath, a.envFiles...)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	var opts []geoprep.ConfigOption
	if flags.Changed("engine") {
		opts = append(opts, geoprep.WithEngine(a.engine))
	}
	if flags.Changed("workspace") {
		opts = append(opts, geoprep.WithWorkspace(a.workspace))
	}
	if flags.Changed("regions") {
		opts = append(opts, geoprep.WithRegionsFile(a.regionsFile))
	}
	if flags.Changed("workers") {
		opts = append(opts, geoprep.WithWorkers(a.workers))
	}
	if flags.Changed("log-level") {
		opts = append(opts, geoprep.WithLogLevel(a.logLevel))
	}
	a.cfg = cfg.Override(opts...)
	if flags.Changed("log-json") {
		a.cfg.Log.JSON = a.logJSON
	}
	if flags.Changed("log-dir") {
		a.cfg.Log.Dir = a.logDir
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.logger, err = geoprep.NewLogger(a.cfg.Log)
	if err != nil {
		return err
	}
	return nil
}

func (a *app) pipeline() (*geoprep.Pipeline, error) {
	p, err := geoprep.New(a.cfg, geoprep.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func printHandle(cmd *cobra.Command, path string) {
	fmt.Fprintln(cmd.OutOrStdout(), path)
}
