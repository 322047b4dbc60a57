package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/smstask/internal/keys"
	"github.com/nhle/smstask/internal/ui/board"
)

func newBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Browse and edit tasks in an interactive terminal view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := tasksEnv()
			if err != nil {
				return err
			}

			m := board.New(env.client, env.owner, keys.DefaultKeyMap(), 80, 24)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
