package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benmeehan/proximity-agent/internal/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvFile    = ".env"
)

type globalFlags struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
}

// NewRootCommand builds the complete command tree.
func NewRootCommand(deps Dependencies) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "proximity-agent",
		Short:         "Notify when the device comes near a saved marker.",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), resolvedVersion(deps.Version))
				return errVersionShown
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "v", false, "Show version and exit.")
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", defaultConfigPath, "Path to the YAML configuration file.")
	root.PersistentFlags().StringVar(&flags.EnvFile, "env", defaultEnvFile, "Optional dotenv file loaded before the configuration.")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Override logging.level from the configuration.")

	root.AddCommand(newRunCommand(deps, flags))
	root.AddCommand(newMarkersCommand(deps, flags))
	root.AddCommand(newVersionCommand(deps))

	return root
}

func newVersionCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolvedVersion(deps.Version))
			return err
		},
	}
}

// loadConfig reads the configuration named by the global flags.
func loadConfig(deps Dependencies, flags *globalFlags) (*utils.Config, error) {
	config, err := deps.LoadConfig(flags.ConfigPath, flags.EnvFile)
	if err != nil {
		return nil, err
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
	return config, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(config *utils.Config, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Logging.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid logging.level %q: %w", config.Logging.Level, err)
	}

	if out == nil {
		out = os.Stdout
	}
	if config.Logging.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
