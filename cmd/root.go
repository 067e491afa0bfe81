package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/app"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/config"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath   string
	forceOffline bool
	logLevel     string
)

// Commands carrying this annotation run without the application (no config, no database)
const standaloneAnnotation = "standalone"

var rootCmd = &cobra.Command{
	Use:   "mediadesk",
	Short: "Queue files and links for remote media processing",
	Long: `mediadesk submits documents, audio, video files and video links to a remote
media processing service, follows their progress and keeps a local history of results.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Annotations[standaloneAnnotation] == "true" {
			return nil
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}

		appInstance, err := app.New(cfg, app.Options{ForceOffline: forceOffline})
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return nil
		}
		return appInstance.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type contextKey string

const appKey contextKey = "app"

// GetAppFromContext returns the application stored by PersistentPreRunE
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

// normalizeFlagName accepts --log_level as well as --log-level
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func init() {
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or $HOME/.mediadesk/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&forceOffline, "offline", false, "use the simulated pipeline instead of the remote service")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}
