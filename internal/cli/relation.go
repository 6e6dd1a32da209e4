package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/artpar/kith/internal/core"
	"github.com/artpar/kith/internal/engine"
)

// relationOutput is the JSON shape printed by the relation commands.
type relationOutput struct {
	Relation  core.RelationKind `json:"relation"`
	ID        string            `json:"id"`
	On        bool              `json:"on"`
	Status    core.Status       `json:"status,omitempty"`
	Count     *int              `json:"count,omitempty"`
	Unchanged bool              `json:"unchanged,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func newLikeCommand(opts *rootOptions, on bool) *cobra.Command {
	var jsonOut bool

	use, short := "like POST_ID", "Like a post"
	if !on {
		use, short = "unlike POST_ID", "Remove a like from a post"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			return setRelation(cmd, a.Likes(), args[0], on, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newConnectCommand(opts *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "connect USERNAME",
		Short: "Send a connection request",
		Long:  "Send a connection request. Connecting to someone who already asked you accepts their request.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			return setRelation(cmd, a.Peers(), args[0], true, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newUnfriendCommand(opts *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "unfriend USERNAME",
		Aliases: []string{"disconnect"},
		Short:   "Remove a connection or withdraw a request",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			return setRelation(cmd, a.Peers(), args[0], false, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newAcceptCommand(opts *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "accept USERNAME",
		Short: "Accept an incoming connection request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeApp, err := opts.openApp()
			if err != nil {
				return err
			}
			defer closeApp()

			ctx := context.Background()
			id := args[0]
			if _, err := a.Peers().Refresh(ctx, id); err != nil {
				return err
			}

			st, err := a.Peers().Accept(ctx, id)
			if err != nil {
				return fmt.Errorf("accept %s: %w", id, err)
			}
			return printState(cmd.OutOrStdout(), a.Peers().Kind(), st, false, jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// setRelation brings the relation to want, toggling only when the authority
// reports it elsewhere. A failed lookup falls back to the cached value.
func setRelation(cmd *cobra.Command, coord *engine.Coordinator, id string, want, jsonOut bool) error {
	ctx := context.Background()

	st, err := coord.Refresh(ctx, id)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	if current(coord.Kind(), st) == want {
		return printState(cmd.OutOrStdout(), coord.Kind(), st, true, jsonOut)
	}

	st, err = coord.Toggle(ctx, id)
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb(coord.Kind(), want), id, err)
	}
	return printState(cmd.OutOrStdout(), coord.Kind(), st, false, jsonOut)
}

// current reports whether the relation is on. A pending request counts as
// connected for the purpose of connect and unfriend.
func current(kind core.RelationKind, st core.RelationState) bool {
	if kind == core.RelationConnected {
		return st.Status.On()
	}
	return st.Displayed
}

func verb(kind core.RelationKind, on bool) string {
	switch {
	case kind == core.RelationLiked && on:
		return "like"
	case kind == core.RelationLiked:
		return "unlike"
	case on:
		return "connect"
	default:
		return "unfriend"
	}
}

func printState(w io.Writer, kind core.RelationKind, st core.RelationState, unchanged, jsonOut bool) error {
	if jsonOut {
		out := relationOutput{
			Relation:  kind,
			ID:        st.ID,
			On:        current(kind, st),
			Status:    st.Status,
			Unchanged: unchanged,
		}
		if st.HasCount {
			out.Count = core.Int(st.Count)
		}
		if st.Err != nil {
			out.Error = st.Err.Error()
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	label := st.Status.Label()
	if kind == core.RelationLiked {
		label = "not liked"
		if st.Displayed {
			label = "liked"
		}
	}
	if unchanged && current(kind, st) {
		label = "already " + label
	}

	line := fmt.Sprintf("%s: %s", st.ID, label)
	if st.HasCount {
		line += fmt.Sprintf(" (%d likes)", st.Count)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
