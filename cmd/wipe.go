package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/smstask/internal/store"
)

func newWipeCmd() *cobra.Command {
	var pin string

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every task after confirming the PIN",
		Long: `Remove every task from the backing file. The PIN must match store.pin.

wipe opens the backing file directly, so run it while serve is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			if pin == "" {
				if err := promptPIN(&pin); err != nil {
					return err
				}
			}

			backend, err := store.OpenBackend(cfg.Store.Driver, cfg.Store.Path)
			if err != nil {
				return err
			}
			tasks, err := store.Open(cmd.Context(), backend, cfg.Store.Table,
				store.WithPIN(cfg.Store.PIN), store.WithLogger(logger))
			if err != nil {
				backend.Close()
				return err
			}
			defer tasks.Close()

			if err := tasks.Clear(cmd.Context(), pin); err != nil {
				if errors.Is(err, store.ErrPINRejected) {
					return fmt.Errorf("wrong PIN; nothing was deleted")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared table %q in %s.\n", cfg.Store.Table, cfg.Store.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "4-digit PIN (prompted when omitted)")
	return cmd
}

var errWipeCancelled = errors.New("wipe cancelled; nothing was deleted")

func promptPIN(pin *string) error {
	var confirm bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("PIN").
				Description("The 4-digit store.pin").
				EchoMode(huh.EchoModePassword).
				CharLimit(4).
				Value(pin).
				Validate(validatePIN),
			huh.NewConfirm().
				Title("Delete every task?").
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	return confirmed(confirm)
}

func confirmed(ok bool) error {
	if !ok {
		return errWipeCancelled
	}
	return nil
}

func validatePIN(s string) error {
	if len(s) != 4 {
		return errors.New("PIN must be 4 digits")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return errors.New("PIN must be 4 digits")
		}
	}
	return nil
}
