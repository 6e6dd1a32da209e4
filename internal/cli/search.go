package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/artpar/kith/internal/tui"
)

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search for people",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			query := strings.Join(args, " ")
			if err := a.Search().Search(context.Background(), query); err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			rows := a.Search().Rows()

			if jsonOut {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(rows)
			}

			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No one matches %q\n", query)
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Username", "Name", "Status")
			for _, row := range rows {
				table.Append(row.Username, row.DisplayName, row.Status.Label())
			}
			return table.Render()
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newFeedCommand(opts *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List posts with their like state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			posts, err := a.LoadFeed(context.Background())
			if err != nil {
				return fmt.Errorf("failed to load feed: %w", err)
			}

			if jsonOut {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(posts)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("ID", "Author", "Likes", "Liked", "Post")
			for _, p := range posts {
				st := a.Likes().State(p.ID)
				liked := ""
				if st.Displayed {
					liked = "yes"
				}
				table.Append(p.ID, p.Author, strconv.Itoa(st.Count), liked, tui.Truncate(p.Body, 48))
			}
			return table.Render()
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
