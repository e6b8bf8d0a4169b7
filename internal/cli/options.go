package cli

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/wsreplay/internal/config"
	"github.com/SmitUplenchwar2687/wsreplay/internal/playback"
)

type replayOptions struct {
	newline    bool
	null       bool
	perc       float64
	count      uint64
	seconds    float64
	addr       string
	configFile string
	logLevel   string
	trace      string
}

func (o *replayOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&o.newline, "newline", "n", false, "records are newline separated (default)")
	f.BoolVarP(&o.null, "null", "0", false, "records are null byte separated")
	f.Float64VarP(&o.perc, "perc", "p", 0.8, "fraction of the file's bytes to play upfront")
	f.Uint64VarP(&o.count, "count", "c", 0, "count of records to play upfront")
	f.Float64VarP(&o.seconds, "time", "t", 1, "seconds to wait between messages")
	f.StringVar(&o.addr, "addr", "127.0.0.1:3333", "address to listen on")
	f.StringVar(&o.configFile, "config", "", "path to a JSON config file")
	f.StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&o.trace, "trace", "", "write a JSON line per delivered record to this file")

	cmd.MarkFlagsMutuallyExclusive("newline", "null")
	cmd.MarkFlagsMutuallyExclusive("perc", "count")
}

// resolve layers defaults, the config file and explicitly set flags.
func (o *replayOptions) resolve(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.LoadFile(o.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Replay.Source = args[0]
	}
	switch {
	case flags.Changed("null") && o.null:
		cfg.Replay.Delimiter = config.DelimiterNull
	case flags.Changed("newline") && o.newline:
		cfg.Replay.Delimiter = config.DelimiterNewline
	}

	var count *uint64
	var perc *float64
	if flags.Changed("count") {
		count = &o.count
	}
	if flags.Changed("perc") {
		perc = &o.perc
	}
	if count != nil || perc != nil {
		policy, err := playback.Resolve(count, perc)
		if err != nil {
			return cfg, err
		}
		cfg.Replay.Upfront = policy
	}

	if flags.Changed("time") {
		d, err := secondsToDuration(o.seconds)
		if err != nil {
			return cfg, err
		}
		cfg.Replay.Interval = d
	}
	if flags.Changed("addr") {
		cfg.Server.Addr = o.addr
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.trace != "" {
		cfg.Replay.Trace = o.trace
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func secondsToDuration(s float64) (time.Duration, error) {
	if math.IsNaN(s) || s < 0 || s > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("invalid -t value %v: must be a non-negative number of seconds", s)
	}
	return time.Duration(s * float64(time.Second)), nil
}
