package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/compute/adapter"
)

func (a *app) newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "Print the records of a collection matching a where clause",
		Long: `Register the configured connection and print the matching records of
a collection, one JSON object per line.

Example:
  compute find users --where '{"role":["admin","owner"]}' --sort=-created_at --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := a.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			where, err := parseWhere(a.v.GetString("where"))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ad, identity, err := a.open(ctx, logger)
			if err != nil {
				return err
			}
			defer ad.Teardown(ctx, identity)

			records, err := ad.Find(ctx, identity, args[0], adapter.Criteria{
				Where: where,
				Limit: a.v.GetInt("limit"),
				Skip:  a.v.GetInt("skip"),
				Sort:  parseSort(a.v.GetStringSlice("sort")),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}

	key := "where"
	cmd.Flags().String(key, "", WrapString("Where clause as a JSON object. List values match any of their elements"))

	key = "limit"
	cmd.Flags().Int(key, 0, WrapString("Maximum number of records to print (0 = no limit)"))

	key = "skip"
	cmd.Flags().Int(key, 0, WrapString("Number of records to skip"))

	key = "sort"
	cmd.Flags().StringSlice(key, nil, WrapString("Attributes to sort by. Prefix with - for descending order"))

	return cmd
}

// parseSort turns "attr" and "-attr" entries into sort clauses.
func parseSort(fields []string) []adapter.Sort {
	var out []adapter.Sort
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.HasPrefix(f, "-") {
			out = append(out, adapter.Sort{Attribute: f[1:], Desc: true})
			continue
		}
		out = append(out, adapter.Sort{Attribute: f})
	}
	return out
}
