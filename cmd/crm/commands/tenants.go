package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/crm-client/internal/constants"
)

// NewTenantsCommand creates the tenants command group.
func NewTenantsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tenants",
		Aliases: []string{"tenant", "orgs"},
		Short:   "Manage saved tenants",
		Long:    "Add, list, select and remove the tenants the CLI can talk to",
	}

	cmd.AddCommand(newTenantsAddCommand())
	cmd.AddCommand(newTenantsListCommand())
	cmd.AddCommand(newTenantsUseCommand())
	cmd.AddCommand(newTenantsRemoveCommand())

	return cmd
}

func newTenantsAddCommand() *cobra.Command {
	var (
		key           string
		username      string
		sandbox       bool
		maxConcurrent int
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a tenant",
		Long:  "Save a tenant under NAME. Run 'crm login NAME' afterwards to authenticate.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			if key == "" {
				key = name
			}

			if username == "" {
				return ErrUsernameRequired
			}

			if maxConcurrent < 1 {
				return constants.ErrInvalidMaxConcurrent
			}

			config := loadConfig()
			if _, exists := config.Tenants[name]; exists {
				return fmt.Errorf("%w: %q", constants.ErrTenantExists, name)
			}

			config.Tenants[name] = &TenantConfig{
				Key:           key,
				Sandbox:       sandbox,
				Username:      username,
				MaxConcurrent: maxConcurrent,
			}

			if config.CurrentTenant == "" {
				config.CurrentTenant = name
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added tenant %s\n", name)

			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "tenant key (defaults to NAME)")
	cmd.Flags().StringVarP(&username, "username", "u", "", "login username")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "log in against the sandbox environment")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", constants.DefaultMaxConcurrent, "maximum concurrent calls")

	return cmd
}

func newTenantsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved tenants",
		Long:  "List all saved tenants and their login state",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			config := loadConfig()

			if format != constants.FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, config.Tenants)
			}

			if len(config.Tenants) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tenants configured.")

				return nil
			}

			rows := make([][]string, 0, len(config.Tenants))

			for _, name := range config.tenantNames() {
				tenant := config.Tenants[name]

				current := ""
				if name == config.CurrentTenant {
					current = "*"
				}

				lastLogin := NotAvailable
				if tenant.LastLogin != nil {
					lastLogin = tenant.LastLogin.Format("2006-01-02 15:04")
				}

				rows = append(rows, []string{
					current,
					name,
					tenant.Key,
					yesNo(tenant.Sandbox),
					tenant.Username,
					strconv.Itoa(maxConcurrent(tenant)),
					yesNo(tenant.Session != nil),
					lastLogin,
				})
			}

			return renderTable(cmd.OutOrStdout(),
				[]string{"", "Name", "Key", "Sandbox", "Username", "Max Concurrent", "Session", "Last Login"}, rows)
		},
	}
}

func newTenantsUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME",
		Short: "Select the current tenant",
		Long:  "Make NAME the tenant used when --tenant is not given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			name, _, err := config.resolveTenant(args[0])
			if err != nil {
				return err
			}

			config.CurrentTenant = name

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Using tenant %s\n", name)

			return nil
		},
	}
}

func newTenantsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm", "delete"},
		Short:   "Remove a saved tenant",
		Long:    "Remove a saved tenant together with its persisted session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			name, _, err := config.resolveTenant(args[0])
			if err != nil {
				return err
			}

			delete(config.Tenants, name)

			if config.CurrentTenant == name {
				config.CurrentTenant = ""
			}

			if err := saveConfigStruct(config); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed tenant %s\n", name)

			return nil
		},
	}
}
