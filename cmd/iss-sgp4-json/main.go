// Command iss-sgp4-json computes the ground track of a satellite from its
// element-set history and the IERS Earth-orientation tables.
//
//	iss-sgp4-json [YYYYMMDDhhmmss[fraction]]   write the track JSON
//	iss-sgp4-json fetch                        download TLE/EOP/leap-second data
//	iss-sgp4-json serve                        start the HTTP API
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/komasaru/iss-sgp4-json/internal/config"
)

const appName = "iss-sgp4-json"

// stdoutOutput as the output setting writes the track to stdout; logs then
// go to stderr.
const stdoutOutput = "-"

// app carries the state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   appName + " [start]",
		Short: "Compute a satellite ground track as JSON",
		Long: `Compute the geodetic latitude, longitude, height and speed of a satellite
for every step of a span of local civil time, and write them as JSON.

start is up to 23 digits YYYYMMDDhhmmss[fraction] in local civil time
(default: now). The span, step and output file come from the configuration.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: a.runTrack,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./"+appName+".{yaml,toml,json})")
	pf.String("data-dir", ".", "directory holding eop.txt, Leap_Second.dat and tle.txt")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Int("norad-id", 25544, "NORAD catalog number of the satellite")
	pf.Int("workers", 0, "propagation workers (default: number of CPUs)")
	pf.String("gravity", "wgs72", "SGP4 gravity model: wgs72old, wgs72, wgs84")
	pf.Duration("utc-offset", 0, "local civil time minus UTC (default 9h)")

	f := root.Flags()
	f.Int("days", 2, "number of days to compute")
	f.Duration("step", 0, "sample step (default 10s)")
	f.StringP("output", "o", "iss.json", "output file, - for stdout")
	f.Bool("skip-errors", false, "omit failed samples instead of aborting")

	root.AddCommand(newFetchCmd(a), newServeCmd(a))
	return root
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"data-dir":    "data_dir",
	"log-level":   "log_level",
	"norad-id":    "norad_id",
	"workers":     "workers",
	"gravity":     "gravity",
	"utc-offset":  "utc_offset",
	"days":        "days",
	"step":        "step",
	"output":      "output",
	"skip-errors": "skip_errors",
	"http-addr":   "http_addr",
}

// init binds the flags of the running command, loads the configuration and
// builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = a.v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("binding flags: %w", bindErr)
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logOut := cmd.OutOrStdout()
	if cfg.Output == stdoutOutput {
		logOut = cmd.ErrOrStderr()
	}
	level, _ := cfg.Level()
	a.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: level,
	}))
	a.logger.Debug("configuration loaded", "config", cfg, "file", a.v.ConfigFileUsed())
	return nil
}
