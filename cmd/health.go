package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the processing backend is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Checking %s...\n", appInstance.Client.BaseURL())
		if appInstance.Health.Check(cmd.Context()) {
			fmt.Fprintln(out, color.GreenString("Backend online."))
			return nil
		}

		st := appInstance.Health.Status()
		fmt.Fprintln(out, color.RedString("Backend offline."))
		if st.LastError != "" {
			fmt.Fprintf(out, "  %s\n", st.LastError)
		}
		return fmt.Errorf("backend unreachable")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
