package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/compute/criteria"
)

func (a *app) newExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <where-json>",
		Short: "Print the exact-match combinations of a where clause",
		Long: `Expand a where clause into the combinations a find would look up,
one JSON object per line. Keys are enumerated in sorted order and the
first key varies slowest.

Example:
  compute expand '{"a":[1,2],"b":"x"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := parseWhere(args[0])
			if err != nil {
				return err
			}

			if n, limit := criteria.Count(where), a.v.GetInt("max-combinations"); n > limit {
				return fmt.Errorf("where clause expands to %d combinations (max %d)", n, limit)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, combo := range criteria.ObjectProduct(where) {
				if err := enc.Encode(combo); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// parseWhere decodes a where clause given as a JSON object.
func parseWhere(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var where map[string]any
	if err := json.Unmarshal([]byte(s), &where); err != nil {
		return nil, fmt.Errorf("invalid where clause: %w", err)
	}
	return where, nil
}
