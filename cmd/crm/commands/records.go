package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/crm-client/internal/constants"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
)

// NewGetCommand creates the get command.
func NewGetCommand() *cobra.Command {
	var fields string

	cmd := &cobra.Command{
		Use:   "get TYPE ID",
		Short: "Retrieve a record",
		Long:  "Retrieve one record by object type and identifier",
		Args:  cobra.ExactArgs(constants.MinimumArgumentCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			id, err := crm.NewID(args[1])
			if err != nil {
				return err
			}

			ctx := context.Background()

			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			var record *crm.Record

			err = sess.run(ctx, func(ctx context.Context) error {
				record, err = sess.client.Retrieve(ctx, sess.tenant(), args[0], id, splitFields(fields))

				return err
			})
			if err != nil {
				return err
			}

			if format != constants.FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, record)
			}

			values := flattenRecord("", record)
			names := make([]string, 0, len(values))

			for name := range values {
				names = append(names, name)
			}

			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, values[name]})
			}

			return renderTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows)
		},
	}

	cmd.Flags().StringVar(&fields, "fields", "", "comma separated fields to retrieve (default: all)")

	return cmd
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe TYPE",
		Short: "Describe an object",
		Long:  "Show the fields of an object type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			ctx := context.Background()

			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			var describe *crm.ObjectDescribe

			err = sess.run(ctx, func(ctx context.Context) error {
				describe, err = sess.client.Describe(ctx, sess.tenant(), args[0])

				return err
			})
			if err != nil {
				return err
			}

			if format != constants.FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, describe)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), key prefix %s\n\n", describe.Name, describe.Label, describe.KeyPrefix)

			rows := make([][]string, 0, len(describe.Fields))
			for _, field := range describe.Fields {
				rows = append(rows, []string{
					field.Name,
					field.Label,
					field.Type,
					yesNo(field.Nillable),
					field.ControllerName,
				})
			}

			return renderTable(cmd.OutOrStdout(), []string{"Name", "Label", "Type", "Nillable", "Controller"}, rows)
		},
	}
}

// NewPicklistCommand creates the picklist command.
func NewPicklistCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "picklist TYPE FIELD",
		Short: "Show dependent picklist values",
		Long:  "Show which values of a dependent picklist are valid for each controlling value",
		Args:  cobra.ExactArgs(constants.MinimumArgumentCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			ctx := context.Background()

			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			var values *crm.DependentValues

			err = sess.run(ctx, func(ctx context.Context) error {
				values, err = sess.client.DependentPicklist(ctx, sess.tenant(), args[0], args[1])

				return err
			})
			if err != nil {
				return err
			}

			if format != constants.FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, values)
			}

			controlling := make([]string, 0, len(values.Values))
			for value := range values.Values {
				controlling = append(controlling, value)
			}

			sort.Strings(controlling)

			rows := make([][]string, 0, len(controlling))
			for _, value := range controlling {
				rows = append(rows, []string{value, strings.Join(values.Values[value], ", ")})
			}

			return renderTable(cmd.OutOrStdout(), []string{values.Controller, values.Field}, rows)
		},
	}
}
