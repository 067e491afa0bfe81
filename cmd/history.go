package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/api"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyRemote bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List processed items",
	Long:  `Lists items recorded in the local history database, or the backend's own history with --remote.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory(cmd, "")
	},
}

var historySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search processed items by file name, service or summary",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory(cmd, strings.Join(args, " "))
	},
}

func showHistory(cmd *cobra.Command, query string) error {
	appInstance, err := GetAppFromContext(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if historyRemote {
		var entries []api.HistoryEntry
		if query != "" {
			entries, err = appInstance.Client.SearchHistory(cmd.Context(), query, historyLimit)
		} else {
			entries, err = appInstance.Client.History(cmd.Context(), historyLimit)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch remote history: %w", err)
		}
		renderRemoteHistory(out, appInstance.Client.BaseURL(), entries)
		return nil
	}

	var records []models.ItemRecord
	if query != "" {
		records, err = appInstance.History.Search(query, historyLimit)
	} else {
		records, err = appInstance.History.List(historyLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	renderLocalHistory(out, records)
	return nil
}

func renderLocalHistory(out io.Writer, records []models.ItemRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"When", "Source", "Service", "Status", "Summary"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range records {
		summary := r.Summary
		if r.Status == string(models.StatusError) {
			summary = r.ErrorDetail
		}
		table.Append([]string{
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.SourceLabel, 40),
			r.Service,
			statusColor(models.ItemStatus(r.Status)),
			truncate(summary, 60),
		})
	}
	table.Render()
}

func renderRemoteHistory(out io.Writer, baseURL string, entries []api.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "When", "File", "Service", "Status", "Download"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, e := range entries {
		download := ""
		if e.DownloadURL != "" {
			download = models.AbsoluteURL(baseURL, e.DownloadURL)
		}
		table.Append([]string{
			fmt.Sprintf("%d", e.ID),
			e.CreatedAt,
			truncate(e.OriginalFile, 40),
			e.Service,
			e.Status,
			download,
		})
	}
	table.Render()
}

func init() {
	historyCmd.PersistentFlags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries")
	historyCmd.PersistentFlags().BoolVar(&historyRemote, "remote", false, "query the backend's history instead of the local database")

	historyCmd.AddCommand(historySearchCmd)
	rootCmd.AddCommand(historyCmd)
}
