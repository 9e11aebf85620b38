package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/subaquatic-pierre/postmanager/internal/method"
	"github.com/subaquatic-pierre/postmanager/pkg/protocol"
)

func newInvokeCmd(opts *globalOptions) *cobra.Command {
	var (
		eventFile  string
		httpMethod string
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run a proxy-style gateway event against a collection",
		Long: `Read a gateway event {httpMethod, path, body, queryStringParameters}
from a file, or stdin with "-", and print the response envelope.

The collection is the first path segment and the post id the last one.
--method overrides the event's httpMethod.

Example:
  echo '{"httpMethod":"GET","path":"/blog/0"}' | postmanager invoke --event -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readEvent(cmd, eventFile)
			if err != nil {
				return err
			}
			req, err := protocol.ParseEvent(data)
			if err != nil {
				return err
			}
			if httpMethod != "" {
				req.Method = strings.ToUpper(httpMethod)
			}
			if c := req.Collection(); c != "" && opts.collection == "" {
				opts.collection = c
			}

			ctx := cmd.Context()
			m, err := openManager(ctx, opts)
			if err != nil {
				return err
			}
			return printResult(cmd, method.Dispatch(ctx, req, m))
		},
	}
	cmd.Flags().StringVar(&eventFile, "event", "-", `event file, or "-" for stdin`)
	cmd.Flags().StringVar(&httpMethod, "method", "", "override the event's httpMethod")
	return cmd
}

func readEvent(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	return data, nil
}
