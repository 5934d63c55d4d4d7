package cli

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpwalk"
)

var mlsdCmd = &cobra.Command{
	Use:   "mlsd URL",
	Short: "Show the raw machine-readable listing of a directory",
	Long: `Mlsd prints every entry the server reports for the directory named
by URL, facts first in wire order, then the entry name. Unlike walk and ls
it keeps the "." and ".." entries, so the cdir facts are visible. The
server must advertise MLSD support.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		entries, err := ftpwalk.MLSD(args[0], walkOptions()...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			for _, e := range entries {
				if err := enc.Encode(toEntryRecord(e)); err != nil {
					return err
				}
			}
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s %s\n", formatFacts(e), e.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mlsdCmd)

	mlsdCmd.Flags().Bool("json", false, "emit one JSON object per entry")
}
