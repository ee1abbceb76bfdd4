//go:build linux

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kboverlay/internal/store"
)

type snippetOptions struct {
	root   *rootOptions
	dbPath string
}

func newSnippetsCmd(opts *rootOptions) *cobra.Command {
	so := &snippetOptions{root: opts}
	cmd := &cobra.Command{
		Use:   "snippets",
		Short: "Manage text expansion snippets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&so.dbPath, "db", "", "snippet database (default expansion.database_path)")

	cmd.AddCommand(
		so.listCmd(),
		so.addCmd(),
		so.removeCmd(),
		so.enableCmd("enable", "Re-enable a disabled snippet", true),
		so.enableCmd("disable", "Disable a snippet without deleting it", false),
		so.importCmd(),
		so.infoCmd(),
	)
	return cmd
}

func (so *snippetOptions) path() (string, error) {
	if so.dbPath != "" {
		return so.dbPath, nil
	}
	cfg, _, err := so.root.loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Expansion.DatabasePath == "" {
		return "", fmt.Errorf("no snippet database configured")
	}
	return cfg.Expansion.DatabasePath, nil
}

func (so *snippetOptions) open() (*store.Store, error) {
	path, err := so.path()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

func (so *snippetOptions) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snippets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := so.open()
			if err != nil {
				return err
			}
			defer st.Close()

			snippets, err := st.List()
			if err != nil {
				return err
			}
			if len(snippets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snippets.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ABBREVIATION\tEXPANSION\tENABLED\tDESCRIPTION")
			for _, sn := range snippets {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", sn.Abbreviation, sn.Expansion, sn.Enabled, sn.Description)
			}
			return w.Flush()
		},
	}
}

func (so *snippetOptions) addCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add ABBREVIATION EXPANSION",
		Short: "Add or replace a snippet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := so.open()
			if err != nil {
				return err
			}
			defer st.Close()

			sn := &store.Snippet{
				Abbreviation: args[0],
				Expansion:    args[1],
				Description:  description,
				Enabled:      true,
			}
			if err := st.Put(sn); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %q.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "optional description")
	return cmd
}

func (so *snippetOptions) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove ABBREVIATION",
		Aliases: []string{"rm"},
		Short:   "Remove a snippet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := so.open()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(args[0]); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q.\n", args[0])
			return nil
		},
	}
}

func (so *snippetOptions) enableCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ABBREVIATION",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := so.open()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetEnabled(args[0], enabled); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %sd.\n", args[0], use)
			return nil
		},
	}
}

func (so *snippetOptions) importCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import snippets from a YAML map of abbreviation: expansion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var entries map[string]string
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			st, err := so.open()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Import(entries, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d snippets.\n", n, len(entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing snippets")
	return cmd
}

func (so *snippetOptions) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the snippet database schema and counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := so.path()
			if err != nil {
				return err
			}
			st, err := store.Open(path)
			if err != nil {
				return err
			}
			defer st.Close()

			info, err := st.SchemaInfo()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", path)
			fmt.Fprintf(out, "Schema:   v%d (latest v%d)\n", info.Version, info.Latest)
			fmt.Fprintf(out, "Snippets: %d (%d enabled)\n", info.Snippets, info.Enabled)
			for _, m := range info.Applied {
				fmt.Fprintf(out, "  v%d  %s  %s\n", m.Version, m.AppliedAt.Format(time.DateTime), m.Description)
			}
			return nil
		},
	}
}
