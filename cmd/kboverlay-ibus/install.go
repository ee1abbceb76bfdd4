//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kboverlay/internal/config"
	"kboverlay/internal/emoji"
	"kboverlay/internal/ime"
	"kboverlay/internal/locale"
)

func newInstallCmd(opts *rootOptions) *cobra.Command {
	var execPath string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the IBus component file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if execPath == "" {
				if execPath, err = os.Executable(); err != nil {
					execPath = "/usr/local/bin/kboverlay-ibus"
				}
			}

			c := ime.DefaultComponent(execPath, cfg.IBus.EngineName, cfg.IBus.BusName, cfg.IBus.Layout)
			path, err := ime.InstallComponent(cfg.IBus.ComponentDir, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s. Run 'ibus restart' to load.\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&execPath, "exec", "", "engine binary recorded in the component (default: this binary)")
	return cmd
}

func newUninstallCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the IBus component file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := ime.UninstallComponent(cfg.IBus.ComponentDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Uninstalled.")
			return nil
		},
	}
}

// errConfigInvalid is returned by check-config after it printed the issues.
var errConfigInvalid = errors.New("configuration is invalid")

func newCheckConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and the files it references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, warnings, err := opts.loadConfig()
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, e := range verrs {
						fmt.Fprintf(out, "error: %s\n", e.Error())
					}
					return errConfigInvalid
				}
				return err
			}

			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w.Error())
			}

			failed := false
			if cfg.Diacritics.TablePath != "" {
				if _, err := locale.LoadFile(cfg.Diacritics.TablePath); err != nil {
					fmt.Fprintf(out, "error: diacritics.table_path: %v\n", err)
					failed = true
				}
			}
			if cfg.Emoji.DataPath != "" {
				if _, err := emoji.LoadFile(cfg.Emoji.DataPath); err != nil {
					fmt.Fprintf(out, "error: emoji.data_path: %v\n", err)
					failed = true
				}
			}
			if failed {
				return errConfigInvalid
			}

			fmt.Fprintf(out, "%s: ok\n", opts.path())
			return nil
		},
	}
}
