package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login [NAME]",
		Short: "Log in to a tenant",
		Long:  "Authenticate against a saved tenant and persist the session for later commands",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			selected := viper.GetString("tenant")
			if len(args) == 1 {
				selected = args[0]
			}

			name, tenant, err := config.resolveTenant(selected)
			if err != nil {
				return err
			}

			if password == "" {
				password = viper.GetString(passwordEnvKey)
			}

			if password == "" {
				password, err = promptPassword(cmd, tenant.Username)
				if err != nil {
					return err
				}
			}

			store := NewConfigSessionStore()

			// A fresh login replaces whatever was persisted.
			_ = store.DeleteSession(tenant.Username, tenant.Sandbox)

			client, err := newClient(loadConfig(), store)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := context.Background()

			err = client.Configure(ctx, tenant.Tenant(), tenant.Username, password, maxConcurrent(tenant))
			if err != nil {
				return fmt.Errorf("failed to log in to %s: %w", name, err)
			}

			bundle, err := client.Pool().TenantBundle(tenant.Tenant())
			if err != nil {
				return err
			}

			current := bundle.Session()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", name, tenant.Username)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Instance: %s\n", current.InstanceURL)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "User ID:  %s\n", current.UserID)

			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted; CRM_PASSWORD also works)")

	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout [NAME]",
		Short: "Forget a tenant's session",
		Long:  "Remove the persisted session of a saved tenant",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			selected := viper.GetString("tenant")
			if len(args) == 1 {
				selected = args[0]
			}

			name, tenant, err := config.resolveTenant(selected)
			if err != nil {
				return err
			}

			if err := NewConfigSessionStore().DeleteSession(tenant.Username, tenant.Sandbox); err != nil {
				return fmt.Errorf("failed to remove session: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", name)

			return nil
		},
	}
}

func promptPassword(cmd *cobra.Command, username string) (string, error) {
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", username)

	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.ErrOrStderr())

	return string(bytePassword), nil
}
