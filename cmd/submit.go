package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/app"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/queue"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	submitService string
	submitFields  map[string]string
	submitQuiet   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file|url>...",
	Short: "Process files and video links as one batch",
	Long: `Queues every argument for the selected service, submits them one at a time and
waits until each one completes or fails. Arguments starting with http:// or https://
are treated as video links, everything else as local files.

Examples:
  mediadesk submit --service translate-video lecture.mp4 talk.mkv
  mediadesk submit --service subtitle-ro --field subtitle_format=srt https://youtu.be/abc`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		svc, err := models.LookupService(submitService)
		if err != nil {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(models.ServiceKeys(), ", "))
		}
		sources, err := parseSources(svc, args)
		if err != nil {
			return err
		}
		for _, src := range sources {
			if _, err := appInstance.Queue.Enqueue(svc.Key, src, submitFields); err != nil {
				return fmt.Errorf("failed to enqueue %s: %w", src.Label(), err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		results, err := runBatch(ctx, appInstance, cmd.OutOrStdout(), !submitQuiet)
		if err != nil {
			return err
		}

		renderResults(cmd.OutOrStdout(), appInstance.Client.BaseURL(), results)

		failed := 0
		for _, it := range results {
			if it.Status == models.StatusError {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d item(s) failed", failed, len(sources))
		}
		if len(results) < len(sources) {
			return fmt.Errorf("batch interrupted: %d of %d item(s) finished", len(results), len(sources))
		}
		return nil
	},
}

// parseSources turns arguments into queue sources, validated against svc
func parseSources(svc models.Service, args []string) ([]models.Source, error) {
	sources := make([]models.Source, 0, len(args))
	for _, arg := range args {
		var (
			src models.Source
			err error
		)
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			src, err = models.NewRemoteReference(arg)
		} else {
			src, err = models.LoadLocalFile(arg)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		if err := svc.ValidateSource(src); err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// runBatch drains the queue while the progress stream is held open alongside it
func runBatch(ctx context.Context, a *app.App, out io.Writer, showProgress bool) ([]models.QueueItem, error) {
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	if !a.Offline() {
		if online := a.Health.Check(ctx); !online {
			color.New(color.FgYellow).Fprintln(out, "Backend unreachable, using the offline pipeline")
		}
	}

	g, gctx := errgroup.WithContext(streamCtx)
	if !a.Offline() && a.Transport.Online() {
		exited := make(chan struct{})
		g.Go(func() error {
			defer close(exited)
			// A stream failure must not abort the batch
			_ = a.RunListener(gctx)
			return nil
		})
		// Events emitted before the stream is open are lost
		if !waitForStream(ctx, a.StreamConnected, exited, streamConnectTimeout) {
			color.New(color.FgYellow).Fprintln(out, "Progress stream not connected, background jobs may not report progress")
		}
	}
	if showProgress {
		g.Go(func() error {
			printProgress(gctx, a.Events, out)
			return nil
		})
	}

	var (
		results  []models.QueueItem
		batchErr error
	)
	g.Go(func() error {
		defer stopStream()
		results, batchErr = a.Queue.SubmitAll(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if batchErr != nil {
		return nil, batchErr
	}
	return results, nil
}

const streamConnectTimeout = 2 * time.Second

// waitForStream blocks until connected reports true, the listener exits or timeout elapses
func waitForStream(ctx context.Context, connected func() bool, exited <-chan struct{}, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		if connected() {
			return true
		}
		select {
		case <-tick.C:
		case <-exited:
			return connected()
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// printProgress writes one line per status change or 10% step
func printProgress(ctx context.Context, events *queue.EventBus, out io.Writer) {
	wake, cancel := events.Subscribe()
	defer cancel()

	last := events.LastSeq()
	shown := make(map[string]string)
	flush := func() {
		for _, ev := range events.Since(last) {
			last = ev.Seq
			if ev.Type != queue.EventItemUpdated || ev.Item == nil {
				continue
			}
			it := ev.Item
			key := fmt.Sprintf("%s/%d", it.Status, it.ProgressPercent/10)
			if shown[it.ID] == key {
				continue
			}
			shown[it.ID] = key
			fmt.Fprintf(out, "%-40s %s %3d%% %s\n", truncate(it.Label, 40), statusColor(it.Status), it.ProgressPercent, progressNote(*it))
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-wake:
			flush()
		}
	}
}

func progressNote(it models.QueueItem) string {
	switch {
	case it.Status == models.StatusError:
		return it.ErrorDetail
	case it.Stage != "" && it.ETASeconds != nil:
		return fmt.Sprintf("%s (%s left)", it.Stage, models.FormatETA(it.ETASeconds))
	case it.Stage != "":
		return it.Stage
	default:
		return ""
	}
}

func statusColor(status models.ItemStatus) string {
	label := fmt.Sprintf("%-10s", status)
	switch status {
	case models.StatusCompleted:
		return color.GreenString(label)
	case models.StatusError:
		return color.RedString(label)
	case models.StatusProcessing, models.StatusUploading:
		return color.CyanString(label)
	default:
		return label
	}
}

// renderResults prints the batch outcome as a table
func renderResults(out io.Writer, baseURL string, results []models.QueueItem) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No items finished.")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Source", "Status", "Result"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, it := range results {
		detail := it.ErrorDetail
		if it.Status == models.StatusCompleted && it.Result != nil {
			links := make([]string, 0, len(it.Result.Artifacts))
			for _, a := range it.Result.Artifacts {
				links = append(links, fmt.Sprintf("%s: %s", a.Kind, models.AbsoluteURL(baseURL, a.URL)))
			}
			detail = strings.Join(links, "\n")
			if detail == "" {
				detail = it.Result.Summary()
			}
		}
		table.Append([]string{truncate(it.Label, 48), string(it.Status), detail})
	}
	table.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	submitCmd.Flags().StringVarP(&submitService, "service", "s", "", "processing service (see 'mediadesk services')")
	submitCmd.Flags().StringToStringVarP(&submitFields, "field", "f", nil, "extra form field sent with each item, e.g. dest_lang=en")
	submitCmd.Flags().BoolVarP(&submitQuiet, "quiet", "q", false, "only print the final results")
	submitCmd.MarkFlagRequired("service")

	rootCmd.AddCommand(submitCmd)
}
