package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/credentials"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:         "token",
	Short:       "Manage the API token stored in the OS keychain",
	Annotations: map[string]string{standaloneAnnotation: "true"},
}

var tokenSetCmd = &cobra.Command{
	Use:         "set [token]",
	Short:       "Store the API token (reads stdin when no argument is given)",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{standaloneAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token = strings.TrimSpace(line)
		}
		if err := credentials.StoreToken(token); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token stored.")
		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:         "clear",
	Short:       "Remove the stored API token",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{standaloneAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.DeleteToken(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Token removed.")
		return nil
	},
}

var tokenStatusCmd = &cobra.Command{
	Use:         "status",
	Short:       "Report whether a token is stored",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{standaloneAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if credentials.IsTokenStored() {
			fmt.Fprintln(cmd.OutOrStdout(), "A token is stored in the keychain.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No token stored.")
		}
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenSetCmd, tokenClearCmd, tokenStatusCmd)
	rootCmd.AddCommand(tokenCmd)
}
