package cmd

import (
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/desktop"

	"github.com/spf13/cobra"
)

var desktopCmd = &cobra.Command{
	Use:   "desktop",
	Short: "Open the desktop window",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		return desktop.Run(appInstance)
	},
}

func init() {
	rootCmd.AddCommand(desktopCmd)
}
