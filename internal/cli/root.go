package cli

import (
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/wsreplay/internal/config"
)

// NewRootCmd creates the wsreplay command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(serve)
}

func newRootCmd(run func(cmd *cobra.Command, cfg config.Config) error) *cobra.Command {
	var opts replayOptions

	root := &cobra.Command{
		Use:   "wsreplay [-c COUNT | -p PERC] [-t TIME] [-n | -0] <file>",
		Short: "Play back a capture file as websocket messages when a client connects",
		Long: `Replays a delimited record file to every websocket client that connects.

Each client first receives an upfront burst, either a fixed number of
records (-c) or records up to a fraction of the file's bytes (-p). After
that one record is sent every -t seconds until the file is exhausted.
Every connection replays the file from the beginning.`,
		Example: `  wsreplay capture.log
  wsreplay -c 100 -t 0.5 capture.log
  wsreplay -0 -p 0.25 capture.bin
  wsreplay --config wsreplay.json --trace deliveries.ndjson`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	opts.addFlags(root)
	root.AddCommand(newExampleConfigCmd())

	return root
}

func newExampleConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config <path>",
		Short: "Write an example JSON config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(args[0]); err != nil {
				return err
			}
			cmd.Printf("wrote %s\n", args[0])
			return nil
		},
	}
}
