package cli

import (
	"fmt"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpwalk"
)

var lsCmd = &cobra.Command{
	Use:   "ls URL",
	Short: "List a single directory",
	Long: `Ls lists the directory named by URL without descending into it.
Subdirectory names are printed with a trailing slash.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		mlsd, _ := cmd.Flags().GetBool("mlsd")

		opts := walkOptions()
		if mlsd {
			opts = append(opts, ftpwalk.WithMLSD())
		}
		l, err := ftpwalk.ListDir(args[0], opts...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return json.NewEncoder(out).Encode(toRecord(l))
		}
		for _, d := range l.Dirs {
			fmt.Fprintf(out, "%s/\n", d)
		}
		for _, f := range l.Files {
			fmt.Fprintln(out, f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().Bool("mlsd", false, "request a machine-readable MLSD listing when the server supports it")
	lsCmd.Flags().Bool("json", false, "emit the listing as a JSON object")
}
