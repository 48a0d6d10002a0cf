package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/postd/internal/config"
	"github.com/roach88/postd/internal/store"
	"github.com/roach88/postd/internal/validate"
	"github.com/roach88/postd/internal/writer"
)

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Database string
	Driver   string
	Email    string
	Content  string
}

// postOutput is the printed form of a created post.
type postOutput struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

func (p postOutput) String() string {
	return fmt.Sprintf("Created post %d for user %d at %d", p.ID, p.UserID, p.CreatedAt)
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Write one post directly to the database",
		Long: `Validate and write a single post without starting the server.

The write goes through the same writer and transaction as POST /posts,
which makes this useful for seeding a database.

Example:
  postd post --db ./db.sqlite --email a@example.com --content hello
  postd post --db ./db.sqlite --email a@example.com --content hello --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Driver, "driver", store.DriverCGo, "database driver: sqlite3 (cgo) or sqlite (pure Go)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "author email (required)")
	cmd.Flags().StringVar(&opts.Content, "content", "", "post content (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

func runPost(opts *PostOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	setupLogging(cmd.ErrOrStderr(), config.LogFormatText, opts.Verbose)

	v, err := validate.New()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to compile request schema", err)
	}

	np, fieldErrs := v.Check(store.NewPost{Content: opts.Content, Email: opts.Email})
	if len(fieldErrs) > 0 {
		if err := formatter.Error(ErrCodeValidation, validationSummary(fieldErrs), fieldErrs); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "invalid post")
	}

	st, err := store.Open(opts.Database, store.WithDriver(opts.Driver))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	formatter.VerboseLog("Opened %s (%s)", opts.Database, st.Driver())

	coord := writer.New(st)
	coord.Start()
	defer shutdownWriter(coord)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	post, err := coord.CreatePost(ctx, np)
	if err != nil {
		if outErr := formatter.Error(string(store.CodeOf(err)), err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "write failed", err)
	}

	return formatter.Success(postOutput{
		ID:        post.ID,
		UserID:    post.UserID,
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	})
}

// validationSummary names the rejected fields in one line, e.g.
// "invalid content, email".
func validationSummary(errs []validate.FieldError) string {
	fields := make([]string, len(errs))
	for i, fe := range errs {
		fields[i] = fe.Field
	}
	return "invalid " + strings.Join(fields, ", ")
}
