package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/eventq/internal/event"
	"github.com/dshills/eventq/internal/journal"
)

// JournalOptions holds flags shared by the journal subcommands.
type JournalOptions struct {
	*RootOptions
	Database   string
	Queue      string
	Categories []string
	After      int64
	Limit      int
	Format     string
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the event journal",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the journal database (defaults to journal.path from the configuration)")
	cmd.PersistentFlags().StringVar(&opts.Queue, "queue", "", "only records of this queue")
	cmd.PersistentFlags().StringSliceVar(&opts.Categories, "category", nil, "only records of these categories")

	cmd.AddCommand(newJournalDumpCommand(opts))
	cmd.AddCommand(newJournalCountCommand(opts))
	cmd.AddCommand(newJournalTruncateCommand(opts))
	return cmd
}

func newJournalDumpCommand(opts *JournalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print journal records in append order",
		Long: `Print journal records in append order.

Examples:
  eventq journal dump --db ./eventq.db
  eventq journal dump --db ./eventq.db --category io,timer --limit 20
  eventq journal dump --db ./eventq.db --after 1200 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalDump(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&opts.After, "after", 0, "skip records up to and including this sequence number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "print at most this many records")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	return cmd
}

func newJournalCountCommand(opts *JournalOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count",
		Short:         "Count journal records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, f, err := opts.open()
			if err != nil {
				return err
			}
			defer j.Close()
			n, err := j.Count(ctxOrBackground(cmd.Context()), f)
			if err != nil {
				return WrapExitError(ExitFailure, "count failed", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

func newJournalTruncateCommand(opts *JournalOptions) *cobra.Command {
	var through int64
	cmd := &cobra.Command{
		Use:           "truncate",
		Short:         "Delete records up to a sequence number",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, _, err := opts.open()
			if err != nil {
				return err
			}
			defer j.Close()
			n, err := j.Truncate(ctxOrBackground(cmd.Context()), through)
			if err != nil {
				return WrapExitError(ExitFailure, "truncate failed", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", n)
			return err
		},
	}
	cmd.Flags().Int64Var(&through, "through", 0, "last sequence number to delete (required)")
	_ = cmd.MarkFlagRequired("through")
	return cmd
}

// open resolves the database path and the record filter.
func (o *JournalOptions) open() (*journal.Journal, journal.Filter, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, journal.Filter{}, err
		}
		path = cfg.Journal.Path
	}
	if path == "" {
		return nil, journal.Filter{}, WrapExitError(ExitCommandError, "no journal database", fmt.Errorf("set --db or journal.path"))
	}

	cats, err := event.ParseCategoryMask(o.Categories)
	if err != nil {
		return nil, journal.Filter{}, WrapExitError(ExitCommandError, "invalid --category", err)
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, journal.Filter{}, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, journal.Filter{Queue: o.Queue, Categories: cats, After: o.After, Limit: o.Limit}, nil
}

type recordJSON struct {
	Seq       int64     `json:"seq"`
	Queue     string    `json:"queue"`
	Recorded  time.Time `json:"recorded_at"`
	Category  string    `json:"category"`
	Kind      string    `json:"kind"`
	Tickstamp uint32    `json:"tickstamp"`
	Label     string    `json:"label,omitempty"`
	Event     string    `json:"event"`
}

func runJournalDump(ctx context.Context, opts *JournalOptions, w io.Writer) error {
	switch opts.Format {
	case "text", "json":
	default:
		return WrapExitError(ExitCommandError, "invalid --format", fmt.Errorf("%q must be text or json", opts.Format))
	}
	j, f, err := opts.open()
	if err != nil {
		return err
	}
	defer j.Close()

	enc := json.NewEncoder(w)
	err = j.Replay(ctxOrBackground(ctx), f, func(r journal.Record) error {
		if opts.Format == "json" {
			cat := r.Event.Category()
			return enc.Encode(recordJSON{
				Seq:       r.Seq,
				Queue:     r.Queue,
				Recorded:  r.Recorded.UTC(),
				Category:  cat.String(),
				Kind:      event.KindName(cat, r.Event.Kind),
				Tickstamp: r.Event.Tickstamp,
				Label:     r.Event.Label.String(),
				Event:     r.Event.String(),
			})
		}
		_, err := fmt.Fprintf(w, "%6d %-8s %s %s\n", r.Seq, r.Queue,
			r.Recorded.UTC().Format(time.RFC3339Nano), r.Event)
		return err
	})
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}
	return nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
