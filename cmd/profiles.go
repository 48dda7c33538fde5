package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sentinel-cli/internal/model"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List configured organization profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, err := initProfiles()
		if err != nil {
			return err
		}

		profiles, err := provider.List(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "list profiles")
		}

		if len(profiles) == 0 {
			fmt.Fprintf(os.Stderr, "No profiles found in %s.\n", cfg.Profiles.Dir)
			return nil
		}

		formatProfiles(os.Stdout, profiles)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func formatProfiles(out io.Writer, profiles []*model.OrganizationProfile) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tINDUSTRY\tCOMPETITORS\tKEYWORDS\tSOURCES")
	for _, p := range profiles {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			p.ID,
			p.Name,
			p.Industry,
			strings.Join(p.Competitors, ","),
			len(p.Keywords),
			len(p.AllSources()),
		)
	}
	_ = w.Flush()
}
