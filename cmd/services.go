package cmd

import (
	"sort"
	"strings"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:         "services",
	Short:       "List the processing services and the inputs they accept",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{standaloneAnnotation: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Key", "Title", "Files", "Links", "Defaults"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, svc := range models.Services {
			links := "no"
			if svc.SupportsURL() {
				links = "yes"
			}
			defaults := make([]string, 0, len(svc.Fields))
			for k, v := range svc.Fields {
				defaults = append(defaults, k+"="+v)
			}
			sort.Strings(defaults)

			table.Append([]string{
				svc.Key,
				svc.Title,
				strings.Join(svc.Extensions, ", "),
				links,
				strings.Join(defaults, " "),
			})
		}
		table.Render()
	},
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}
