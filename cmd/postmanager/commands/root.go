// Package commands implements the postmanager CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	cfgFile    string
	collection string
	logLevel   string
}

// NewRootCmd builds the command tree. Each call returns an independent tree,
// so tests can execute commands without leaking flag state.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "postmanager",
		Short: "Manage posts stored on S3, the local filesystem or in memory",
		Long: `postmanager stores posts (metadata, content and media) in a collection
namespace on a pluggable storage backend and serves them over HTTP.

Every command prints the response envelope {statusCode, headers, body}
produced by the matching HTTP verb.

Use "postmanager [command] --help" for more information about a command.`,
		Version:       Version + " (" + Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	root.PersistentFlags().StringVarP(&opts.collection, "collection", "c", "", "collection name (default: config collection)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newCreateCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newFilesCmd(opts),
		newInvokeCmd(opts),
		newTokenCmd(opts),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}
