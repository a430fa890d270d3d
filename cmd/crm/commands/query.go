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

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	var (
		allPages       bool
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "query QUERY",
		Short: "Run a query",
		Long:  "Run a query against the selected tenant and print the matching records",
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

			var (
				records   []*crm.Record
				totalSize int
			)

			err = sess.run(ctx, func(ctx context.Context) error {
				records, totalSize, err = runQuery(ctx, sess, args[0], allPages, includeDeleted)

				return err
			})
			if err != nil {
				return err
			}

			if format != constants.FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, map[string]interface{}{
					"totalSize": totalSize,
					"records":   records,
				})
			}

			if len(records) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No records found.")

				return nil
			}

			header, rows := recordRows(records)
			if err := renderTable(cmd.OutOrStdout(), header, rows); err != nil {
				return err
			}

			if len(records) < totalSize {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d records, use --all-pages for the rest.\n", len(records), totalSize)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&allPages, "all-pages", false, "follow the cursor until every page is fetched")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include deleted and archived records")

	return cmd
}

func runQuery(ctx context.Context, sess *session, query string, allPages, includeDeleted bool) ([]*crm.Record, int, error) {
	tenant := sess.tenant()
	client := sess.client

	var (
		page *crm.QueryResult
		err  error
	)

	if includeDeleted {
		page, err = client.QueryAll(ctx, tenant, query)
	} else {
		page, err = client.Query(ctx, tenant, query)
	}

	if err != nil {
		return nil, 0, err
	}

	records := page.Records()
	totalSize := page.TotalSize()

	for allPages {
		cursor, more := page.Cursor()
		if !more {
			break
		}

		page, err = client.QueryMore(ctx, tenant, cursor)
		if err != nil {
			return nil, 0, err
		}

		records = append(records, page.Records()...)
	}

	return records, totalSize, nil
}

// recordRows flattens records into table rows. Columns are the union of
// field names; parent fields appear as Relationship.Field.
func recordRows(records []*crm.Record) ([]string, [][]string) {
	flat := make([]map[string]string, len(records))
	columns := map[string]struct{}{}

	for i, record := range records {
		flat[i] = flattenRecord("", record)
		for column := range flat[i] {
			columns[column] = struct{}{}
		}
	}

	header := make([]string, 0, len(columns))
	for column := range columns {
		header = append(header, column)
	}

	sort.Slice(header, func(i, j int) bool {
		if header[i] == "Id" || header[j] == "Id" {
			return header[i] == "Id"
		}

		return header[i] < header[j]
	})

	rows := make([][]string, len(records))

	for i, values := range flat {
		row := make([]string, len(header))

		for j, column := range header {
			row[j] = values[column]
		}

		rows[i] = row
	}

	return header, rows
}

func flattenRecord(prefix string, record *crm.Record) map[string]string {
	values := map[string]string{}

	if id, ok := record.ID(); ok {
		values[prefix+"Id"] = id.Full()
	}

	for name, value := range record.Fields() {
		values[prefix+name] = valueOrNA(value)
	}

	for relationship, parent := range record.AllParents() {
		for name, value := range flattenRecord(prefix+relationship+".", parent) {
			values[name] = value
		}
	}

	for relationship, children := range record.AllChildren() {
		values[prefix+relationship] = fmt.Sprintf("%d %s", children.TotalSize(), pluralRecords(children.TotalSize()))
	}

	return values
}

func pluralRecords(n int) string {
	if n == 1 {
		return "record"
	}

	return "records"
}

// splitFields parses a comma separated --fields value.
func splitFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))

	for _, part := range parts {
		if field := strings.TrimSpace(part); field != "" {
			fields = append(fields, field)
		}
	}

	return fields
}
