// Package cli implements the ftpwalk command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gonzalop/ftpwalk"
)

// Configuration keys, resolved through viper with the usual precedence:
// flag > FTPWALK_* environment variable > config file > default.
const (
	userKey     = "user"
	passwordKey = "password"
	timeoutKey  = "timeout"
	verboseKey  = "verbose"
)

var (
	cfgFile string

	// logger is the invocation logger, built once per run with its walk_id
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ftpwalk",
	Short: "Walk directory trees on FTP servers",
	Long: `ftpwalk traverses a directory tree on an FTP server and prints one
listing per directory, lazily, in depth-first pre-order.

URLs have the form ftp://[user[:password]@]host[:port][/path]. Credentials
can also be given with --user/--password, the FTPWALK_USER and
FTPWALK_PASSWORD environment variables, or the config file; without any,
the login is anonymous.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		logger = newLogger(cmd.ErrOrStderr())
		return nil
	},
}

// Execute runs the command tree. It is called once, from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ftpwalk.yaml)")
	rootCmd.PersistentFlags().String("user", "", "username for the FTP login, overriding the URL")
	rootCmd.PersistentFlags().String("password", "", "password for the FTP login, overriding the URL")
	rootCmd.PersistentFlags().Duration("timeout", 30*time.Second, "I/O timeout on the control connection")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every FTP exchange to stderr")

	bindFlags()
}

func bindFlags() {
	_ = viper.BindPFlag(userKey, rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag(passwordKey, rootCmd.PersistentFlags().Lookup("password"))
	_ = viper.BindPFlag(timeoutKey, rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag(verboseKey, rootCmd.PersistentFlags().Lookup("verbose"))
}

// loadConfig wires up viper: the --config file when given, otherwise
// $HOME/.ftpwalk.yaml if it exists, plus FTPWALK_* environment variables.
// A missing config file is only an error when it was named explicitly.
func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "locating home directory")
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".ftpwalk")
	}

	viper.SetEnvPrefix("ftpwalk")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "reading config file")
		}
	}
	return nil
}

// newLogger builds the invocation logger: text on stderr, debug level with
// --verbose, and a fresh ULID on every run so interleaved or retried walks
// can be told apart in the output.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool(verboseKey) {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("walk_id", ulid.Make().String())
}

// clientOptions assembles the connection options shared by every command.
func clientOptions() []ftpwalk.Option {
	opts := []ftpwalk.Option{ftpwalk.WithTimeout(viper.GetDuration(timeoutKey))}
	if viper.GetBool(verboseKey) {
		opts = append(opts, ftpwalk.WithLogger(logger))
	}
	return opts
}

// walkOptions assembles the traversal options from the persistent settings.
func walkOptions() []ftpwalk.WalkOption {
	opts := []ftpwalk.WalkOption{ftpwalk.WithClientOptions(clientOptions()...)}
	if user := viper.GetString(userKey); user != "" {
		opts = append(opts, ftpwalk.WithCredentials(user, viper.GetString(passwordKey)))
	}
	return opts
}
