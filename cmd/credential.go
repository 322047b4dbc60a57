package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/smstask/internal/credential"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the mail password kept in the system keyring",
	}
	cmd.AddCommand(newCredentialSetCmd())
	cmd.AddCommand(newCredentialDeleteCmd())
	return cmd
}

// mailAccount returns the --account flag or the configured mail address.
func mailAccount(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Mail.Address == "" {
		return "", errors.New("no mail account: pass --account or set mail.address")
	}
	return cfg.Mail.Address, nil
}

func newCredentialSetCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the mail password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			acct, err := mailAccount(account)
			if err != nil {
				return err
			}

			var password string
			err = huh.NewInput().
				Title("Password for " + acct).
				Description("App password used for IMAP and SMTP").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}).
				Run()
			if err != nil {
				return err
			}

			vault, err := credential.Open()
			if err != nil {
				return err
			}
			if err := vault.SetMailPassword(acct, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored password for %s.\n", acct)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "mail account (defaults to mail.address)")
	return cmd
}

func newCredentialDeleteCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored mail password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			acct, err := mailAccount(account)
			if err != nil {
				return err
			}
			vault, err := credential.Open()
			if err != nil {
				return err
			}
			if err := vault.DeleteMailPassword(acct); err != nil {
				if errors.Is(err, credential.ErrNotFound) {
					fmt.Fprintf(cmd.OutOrStdout(), "No password stored for %s.\n", acct)
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted password for %s.\n", acct)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "mail account (defaults to mail.address)")
	return cmd
}
