package cli

import (
	"context"
	"io"
	"time"

	"github.com/robinjoseph08/golib/signals"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpwalk"
	"github.com/gonzalop/ftpwalk/retry"
)

var walkCmd = &cobra.Command{
	Use:   "walk URL",
	Short: "Recursively list every directory under a URL",
	Long: `Walk lists the directory named by URL and every directory below it,
one record per directory, parents before children. Records are printed as
they arrive from the server, so output starts immediately even on large
trees. The first error stops the traversal.`,
	Args: cobra.ExactArgs(1),
	RunE: runWalk,
}

func init() {
	rootCmd.AddCommand(walkCmd)

	walkCmd.Flags().Int("depth", -1, "levels below the root to descend; negative is unbounded, 0 lists only the root")
	walkCmd.Flags().Duration("pause", ftpwalk.DefaultPause, "delay between directory listings")
	walkCmd.Flags().Bool("mlsd", false, "request machine-readable MLSD listings when the server supports them")
	walkCmd.Flags().Bool("json", false, "emit one JSON object per directory")
	walkCmd.Flags().Int("retries", 0, "retry a failed traversal this many times")
	walkCmd.Flags().Duration("retry-delay", retry.DefaultDelay, "wait between traversal retries")
}

func runWalk(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	depth, _ := flags.GetInt("depth")
	pause, _ := flags.GetDuration("pause")
	mlsd, _ := flags.GetBool("mlsd")
	asJSON, _ := flags.GetBool("json")
	retries, _ := flags.GetInt("retries")
	retryDelay, _ := flags.GetDuration("retry-delay")

	opts := append(walkOptions(), ftpwalk.WithDepth(depth), ftpwalk.WithPause(pause))
	if mlsd {
		opts = append(opts, ftpwalk.WithMLSD())
	}

	// One shutdown path: a signal cancels the context, which closes the
	// walker in flight and stops any further retry attempts.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	graceful := signals.Setup()
	go func() {
		select {
		case <-graceful:
			logger.Info("interrupted, finishing up")
			cancel()
		case <-ctx.Done():
		}
	}()

	walkOnce := func() error {
		return streamWalk(ctx, cmd.OutOrStdout(), args[0], opts, asJSON)
	}
	if retries > 0 {
		return retry.Do(ctx, walkOnce,
			retry.WithAttempts(retries+1),
			retry.WithDelay(retryDelay),
		)
	}
	return walkOnce()
}

// streamWalk runs one traversal, writing records as they arrive.
func streamWalk(ctx context.Context, out io.Writer, url string, opts []ftpwalk.WalkOption, asJSON bool) error {
	w := ftpwalk.Walk(url, opts...)
	defer w.Close()

	stop := context.AfterFunc(ctx, func() { w.Close() })
	defer stop()

	start := time.Now()
	count := 0
	for w.Next() {
		if err := writeListing(out, w.Listing(), asJSON); err != nil {
			return err
		}
		count++
	}
	if err := w.Err(); err != nil {
		return err
	}
	logger.Debug("traversal finished", "directories", count, "elapsed", time.Since(start))
	return nil
}
