package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/location-cli/internal/model"
	"github.com/sells-group/location-cli/internal/store"
)

var (
	eventsName    string
	eventsSince   time.Duration
	eventsLimit   int
	eventsJSON    bool
	eventsCounts  bool
	pushTarget    string
	pushBatchSize int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and export recorded analytics events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded analytics events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var since time.Time
		if eventsSince > 0 {
			since = time.Now().UTC().Add(-eventsSince)
		}
		out := cmd.OutOrStdout()

		if eventsCounts {
			counts, err := st.CountEvents(ctx, since)
			if err != nil {
				return err
			}
			if eventsJSON {
				return writeJSON(out, counts)
			}
			return printCounts(out, counts)
		}

		events, err := st.ListEvents(ctx, store.EventFilter{Name: eventsName, Since: since, Limit: eventsLimit})
		if err != nil {
			return err
		}
		if eventsJSON {
			if events == nil {
				events = []model.AnalyticsEvent{}
			}
			return writeJSON(out, events)
		}
		return printEvents(out, events)
	},
}

var eventsPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy locally recorded events into a Postgres warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if pushTarget == "" {
			return eris.New("--target postgres connection string is required")
		}

		src, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck
		if err := src.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate source store")
		}

		dst, err := store.NewPostgres(ctx, pushTarget, nil)
		if err != nil {
			return err
		}
		defer dst.Close() //nolint:errcheck
		if err := dst.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate target store")
		}

		var since time.Time
		if eventsSince > 0 {
			since = time.Now().UTC().Add(-eventsSince)
		}
		total, err := pushEvents(ctx, src, dst, since, pushBatchSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pushed %d events\n", total)
		return nil
	},
}

// eventImporter bulk-loads events.
type eventImporter interface {
	ImportEvents(ctx context.Context, events []model.AnalyticsEvent) (int64, error)
}

// pushEvents pages through src and imports each page into dst.
func pushEvents(ctx context.Context, src store.Store, dst eventImporter, since time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var total int64
	for offset := 0; ; offset += batchSize {
		page, err := src.ListEvents(ctx, store.EventFilter{Since: since, Limit: batchSize, Offset: offset})
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}
		n, err := dst.ImportEvents(ctx, page)
		if err != nil {
			return total, err
		}
		total += n
		zap.L().Debug("pushed event page", zap.Int("offset", offset), zap.Int64("rows", n))
		if len(page) < batchSize {
			return total, nil
		}
	}
}

func printEvents(w io.Writer, events []model.AnalyticsEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tNAME\tATTRIBUTES")
	for _, ev := range events {
		keys := make([]string, 0, len(ev.Attributes))
		for k := range ev.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrs := ""
		for i, k := range keys {
			if i > 0 {
				attrs += " "
			}
			attrs += k + "=" + ev.Attributes[k]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.RecordedAt.Format(time.RFC3339), ev.Name, attrs)
	}
	return tw.Flush()
}

func printCounts(w io.Writer, counts map[string]int) error {
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCOUNT")
	for _, n := range names {
		fmt.Fprintf(tw, "%s\t%d\n", n, counts[n])
	}
	return tw.Flush()
}

func init() {
	eventsCmd.PersistentFlags().DurationVar(&eventsSince, "since", 0, "only events recorded within this window (e.g. 24h)")

	eventsListCmd.Flags().StringVar(&eventsName, "name", "", "filter by event name")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum events to list")
	eventsListCmd.Flags().BoolVar(&eventsJSON, "json", false, "print as JSON")
	eventsListCmd.Flags().BoolVar(&eventsCounts, "counts", false, "print counts per event name")

	eventsPushCmd.Flags().StringVar(&pushTarget, "target", "", "postgres connection string of the warehouse")
	eventsPushCmd.Flags().IntVar(&pushBatchSize, "batch-size", 1000, "events per COPY batch")

	eventsCmd.AddCommand(eventsListCmd, eventsPushCmd)
	rootCmd.AddCommand(eventsCmd)
}
