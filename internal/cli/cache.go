package cli

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/artpar/kith/internal/core"
)

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local relation cache",
	}

	cmd.AddCommand(newCacheListCommand(opts), newCacheClearCommand(opts))
	return cmd
}

// relationArgs resolves an optional relation argument; none means both.
func relationArgs(args []string) ([]core.RelationKind, error) {
	if len(args) == 0 {
		return []core.RelationKind{core.RelationLiked, core.RelationConnected}, nil
	}
	kind, err := core.ParseRelationKind(args[0])
	if err != nil {
		return nil, err
	}
	return []core.RelationKind{kind}, nil
}

func newCacheListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [liked|connected]",
		Short: "List cached relation members",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := relationArgs(args)
			if err != nil {
				return err
			}

			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Relation", "ID")
			for _, kind := range kinds {
				cache, err := a.Cache(kind)
				if err != nil {
					return err
				}
				for _, id := range cache.IDs() {
					table.Append(string(kind), id)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Origin: %s\n", a.Origin())
			return table.Render()
		},
	}
}

func newCacheClearCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [liked|connected]",
		Short: "Forget cached relation members",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := relationArgs(args)
			if err != nil {
				return err
			}

			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			for _, kind := range kinds {
				cache, err := a.Cache(kind)
				if err != nil {
					return err
				}
				n := cache.Len()
				if err := cache.Clear(); err != nil {
					return fmt.Errorf("failed to clear %s cache: %w", kind, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s entries\n", n, kind)
			}
			return nil
		},
	}
}
