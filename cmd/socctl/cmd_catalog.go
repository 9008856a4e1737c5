package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/said46/autoSOC/internal/overrides/application"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

var discoverJSON bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Print every type, method and state of the catalog",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Print the catalog as JSON")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.log.Sync()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	tree, err := e.service.Discover(ctx)
	if err != nil {
		return err
	}
	if discoverJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	}
	return writeTree(cmd.OutOrStdout(), tree)
}

func writeTree(w io.Writer, tree application.CatalogTree) error {
	for _, t := range tree.Types {
		if _, err := fmt.Fprintf(w, "%d %s\n", t.Type.ID, t.Type.Title); err != nil {
			return err
		}
		for _, m := range t.Methods {
			fmt.Fprintf(w, "  %d %s\n", m.Method.ID, m.Method.Title)
			writeStates(w, "applied", m.States.Applied)
			writeStates(w, "removed", m.States.Removed)
		}
	}
	return nil
}

func writeStates(w io.Writer, role string, states []overrides.OverrideState) {
	for _, s := range states {
		fmt.Fprintf(w, "    %s %d %s\n", role, s.ID, s.Title)
	}
}
