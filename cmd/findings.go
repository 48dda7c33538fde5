package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sentinel-cli/internal/store"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List persisted analyzer findings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		org, _ := cmd.Flags().GetString("org")
		runID, _ := cmd.Flags().GetString("run")
		analyzer, _ := cmd.Flags().GetString("analyzer")
		limit, _ := cmd.Flags().GetInt("limit")

		findings, err := st.ListFindings(ctx, store.FindingFilter{
			OrgID:    org,
			RunID:    runID,
			Analyzer: analyzer,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "findings list")
		}

		if len(findings) == 0 {
			fmt.Fprintln(os.Stderr, "No findings found.")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	},
}

func init() {
	findingsCmd.Flags().String("org", "", "filter by organization ID")
	findingsCmd.Flags().String("run", "", "filter by run ID")
	findingsCmd.Flags().String("analyzer", "", "filter by analyzer (crisis, opportunity, prediction)")
	findingsCmd.Flags().Int("limit", 50, "max number of findings to display")
	rootCmd.AddCommand(findingsCmd)
}
