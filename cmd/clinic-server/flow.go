package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/optoclinic/clinic/internal/config"
	"github.com/optoclinic/clinic/internal/platform/flow"
)

// withNavigator opens the on-disk flow store for a single command.
func withNavigator(fn func(n *flow.Navigator) error) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	store, err := flow.OpenLevelDB(cfg.FlowStateDir)
	if err != nil {
		return err
	}
	defer store.Close()

	n := flow.NewNavigator(store)
	n.SetLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
	return fn(n)
}

func flowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Inspect and move the local consultation navigator",
	}

	var status string
	show := &cobra.Command{
		Use:   "show <appointment-id>",
		Short: "Print the navigator state, reconciled with the server status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(func(n *flow.Navigator) error {
				st, err := n.Open(args[0], status)
				if err != nil {
					return err
				}
				printState(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	show.Flags().StringVar(&status, "status", "", "appointment status reported by the server")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "step <appointment-id> <step>",
		Short: "Set the current flow step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(func(n *flow.Navigator) error {
				return n.SetFlowStep(args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tab <appointment-id> <tab>",
		Short: "Set the active tab",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(func(n *flow.Navigator) error {
				return n.SetActiveTab(args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "done <appointment-id> <tab>",
		Short: "Mark a tab complete",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(func(n *flow.Navigator) error {
				completed, err := n.MarkComplete(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d tab(s) complete\n", len(completed))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset <appointment-id>",
		Short: "Discard the navigator state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withNavigator(func(n *flow.Navigator) error {
				return n.Reset(args[0])
			})
		},
	})
	return cmd
}

func printState(w io.Writer, st *flow.State) {
	done, total := st.Progress()
	fmt.Fprintf(w, "step: %s\n", st.FlowStep)
	fmt.Fprintf(w, "tab:  %s\n", st.ActiveTab)
	fmt.Fprintf(w, "progress: %d/%d\n", done, total)

	tabs := make([]string, 0, len(st.Completed))
	for t, ok := range st.Completed {
		if ok {
			tabs = append(tabs, t)
		}
	}
	sort.Strings(tabs)
	for _, t := range tabs {
		fmt.Fprintf(w, "  [x] %s\n", t)
	}
}
