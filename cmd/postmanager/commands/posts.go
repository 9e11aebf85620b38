package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/subaquatic-pierre/postmanager/internal/method"
	"github.com/subaquatic-pierre/postmanager/pkg/protocol"
)

// run opens the selected collection and runs one verb against it.
func run(cmd *cobra.Command, opts *globalOptions, h method.Handler, req *protocol.Request) error {
	ctx := cmd.Context()
	m, err := openManager(ctx, opts)
	if err != nil {
		return err
	}
	req.Path = "/" + m.Name() + req.Path
	return printResult(cmd, h(ctx, req, m))
}

func postPath(arg string) (string, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return "", fmt.Errorf("invalid post id %q", arg)
	}
	return "/" + strconv.Itoa(id), nil
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the collection index",
		Long: `List every post's metadata in the collection index.

With --title, print {"id": n} for the post with that exact title instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &protocol.Request{Method: http.MethodGet}
			if title != "" {
				req.Query = map[string]string{"title": title}
			}
			return run(cmd, opts, method.List, req)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "look up the id of the post with this title")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a post with its content and media index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := postPath(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, method.Get, &protocol.Request{Method: http.MethodGet, Path: path})
		},
	}
}

// postFlags are the body flags shared by create and update.
type postFlags struct {
	title       string
	content     string
	meta        []string
	media       []string
	deleteMedia []string
}

func (f *postFlags) register(cmd *cobra.Command, withDelete bool) {
	cmd.Flags().StringVar(&f.title, "title", "", "post title")
	cmd.Flags().StringVar(&f.content, "content", "", "post content; JSON is stored as-is, anything else as a string")
	cmd.Flags().StringArrayVar(&f.meta, "meta", nil, "extra metadata as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&f.media, "media", nil, "attach a file as name=path (repeatable)")
	if withDelete {
		cmd.Flags().StringArrayVar(&f.deleteMedia, "delete-media", nil, "remove a media item by name (repeatable)")
	}
}

func (f *postFlags) body() (json.RawMessage, error) {
	var body protocol.PostBody
	var err error

	if body.MetaData, err = parseMetaFlags(f.title, f.meta); err != nil {
		return nil, err
	}
	if f.content != "" {
		body.Content = jsonValue(f.content)
	}
	if body.Media, err = parseMediaFlags(f.media); err != nil {
		return nil, err
	}
	body.DeleteMedia = f.deleteMedia
	return json.Marshal(body)
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	flags := &postFlags{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a post",
		Long: `Create a post in the collection. A new id is always allocated.

Examples:
  postmanager create --title "Hello" --content '{"blocks": []}'
  postmanager create --title "Trip" --meta author=ana --media cover=./cover.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.title == "" && len(flags.meta) == 0 {
				return fmt.Errorf("--title or --meta is required")
			}
			body, err := flags.body()
			if err != nil {
				return err
			}
			return run(cmd, opts, method.Create, &protocol.Request{Method: http.MethodPost, Body: body})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newUpdateCmd(opts *globalOptions) *cobra.Command {
	flags := &postFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a post",
		Long: `Merge metadata into a post, replace its content and add or remove media.
Flags that are not given leave the stored values untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := postPath(args[0])
			if err != nil {
				return err
			}
			body, err := flags.body()
			if err != nil {
				return err
			}
			return run(cmd, opts, method.Update, &protocol.Request{Method: http.MethodPut, Path: path, Body: body})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post and everything stored under it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := postPath(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, method.Delete, &protocol.Request{Method: http.MethodDelete, Path: path})
		},
	}
}

func newFilesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List every file stored in the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(cmd.Context(), opts)
			if err != nil {
				return err
			}
			files, err := m.ListFiles(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}
