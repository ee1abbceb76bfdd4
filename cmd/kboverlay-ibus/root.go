//go:build linux

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"kboverlay/internal/config"
	"kboverlay/internal/logging"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   levelFlag
}

// levelFlag is a pflag.Value that only accepts known log levels.
type levelFlag struct {
	value string
}

var _ pflag.Value = (*levelFlag)(nil)

func (f *levelFlag) String() string { return f.value }

func (f *levelFlag) Set(s string) error {
	lvl, err := logging.ParseLevel(s)
	if err != nil {
		return err
	}
	f.value = logging.LevelString(lvl)
	return nil
}

func (f *levelFlag) Type() string { return "level" }

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	runOpts := &runOptions{}

	root := &cobra.Command{
		Use:           "kboverlay-ibus",
		Short:         "Keyboard overlay input method engine for IBus",
		Long:          "Long-press diacritics, prefix emoji search and text expansion as an IBus engine.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd.Context(), opts, runOpts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $KBOVERLAY_CONFIG or ~/.config/kboverlay/config.toml)")
	root.PersistentFlags().Var(&opts.logLevel, "log-level", "override the configured log level: debug|info|warn|error")

	root.AddCommand(
		newRunCmd(opts, runOpts),
		newInstallCmd(opts),
		newUninstallCmd(opts),
		newCheckConfigCmd(opts),
		newSnippetsCmd(opts),
	)
	return root
}

func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.ConfigPath()
}

// loadConfig reads the configuration without creating a file.
func (o *rootOptions) loadConfig() (*config.Config, config.ValidationErrors, error) {
	loader := config.NewLoader(o.path())
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel.value != "" {
		cfg.Logging.Level = o.logLevel.value
	}
	return cfg, loader.Warnings(), nil
}
