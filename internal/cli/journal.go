package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/journal"
)

type journalListOptions struct {
	relation string
	entityID string
	outcome  string
	since    time.Duration
	limit    int
	jsonOut  bool
}

func newJournalCommand(opts *rootOptions) *cobra.Command {
	list := &journalListOptions{}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show settled mutations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := list.query()
			if err != nil {
				return err
			}

			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			entries, err := a.Journal().List(context.Background(), q)
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}

			if list.jsonOut {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Journal is empty")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Time", "Relation", "ID", "Action", "Outcome", "Detail", "Took")
			for _, e := range entries {
				detail := e.Result
				if e.Error != "" {
					detail = e.Error
				}
				table.Append(
					e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					e.Relation,
					e.EntityID,
					e.Action,
					string(e.Outcome),
					detail,
					fmt.Sprintf("%dms", e.Duration),
				)
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVarP(&list.relation, "relation", "r", "", "Only this relation (liked, connected)")
	cmd.Flags().StringVar(&list.entityID, "id", "", "Only this post or username")
	cmd.Flags().StringVar(&list.outcome, "outcome", "", "Only this outcome (confirmed, reclassified, rolled_back)")
	cmd.Flags().DurationVar(&list.since, "since", 0, "Only entries newer than this, e.g. 24h")
	cmd.Flags().IntVarP(&list.limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&list.jsonOut, "json", false, "Output as JSON")

	cmd.AddCommand(newJournalPruneCommand(opts), newJournalClearCommand(opts))
	return cmd
}

func (o *journalListOptions) query() (journal.QueryOptions, error) {
	q := journal.QueryOptions{
		EntityID: o.entityID,
		Limit:    o.limit,
	}
	if o.relation != "" {
		kind, err := core.ParseRelationKind(o.relation)
		if err != nil {
			return q, err
		}
		q.Relation = string(kind)
	}
	switch outcome := journal.Outcome(o.outcome); outcome {
	case "", journal.OutcomeConfirmed, journal.OutcomeReclassified, journal.OutcomeRolledBack:
		q.Outcome = outcome
	default:
		return q, fmt.Errorf("unknown outcome %q", o.outcome)
	}
	if o.since > 0 {
		q.After = time.Now().Add(-o.since)
	}
	return q, nil
}

func newJournalPruneCommand(opts *rootOptions) *cobra.Command {
	var prune journal.PruneOptions

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prune.OlderThan <= 0 && prune.KeepLast <= 0 {
				return fmt.Errorf("one of --older-than or --keep is required")
			}

			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			n, err := a.Journal().Prune(context.Background(), prune)
			if err != nil {
				return fmt.Errorf("failed to prune journal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&prune.OlderThan, "older-than", 0, "Delete entries older than this, e.g. 720h")
	cmd.Flags().IntVar(&prune.KeepLast, "keep", 0, "Keep only the newest N entries")
	return cmd
}

func newJournalClearCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every journal entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			if err := a.Journal().Clear(context.Background()); err != nil {
				return fmt.Errorf("failed to clear journal: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Journal cleared")
			return nil
		},
	}
}
