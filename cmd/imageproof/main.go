package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/bryanwahyu/imageproof/internal/client"
)

var (
	settings = viper.New()
	api      *client.Client
)

var rootCmd = &cobra.Command{
	Use:           "imageproof",
	Short:         "Dashboard client for the imageproof API",
	Long:          "Uploads images for authenticity scoring and shows the caller's analyses.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initLogger(settings.GetBool("verbose")); err != nil {
			return eris.Wrap(err, "init logger")
		}
		server := settings.GetString("server")
		if server == "" {
			return eris.New("no server configured (--server or IMAGEPROOF_SERVER)")
		}
		api = client.New(server, settings.GetString("token"))
		if d := settings.GetDuration("timeout"); d > 0 {
			api.HTTP.Timeout = d
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:8080", "API base URL")
	flags.String("token", "", "bearer token (JWT or API key)")
	flags.Duration("timeout", 0, "per-request timeout, 0 keeps the client default")
	flags.BoolP("verbose", "v", false, "debug logging on stderr")

	settings.SetEnvPrefix("IMAGEPROOF")
	settings.AutomaticEnv()
	for _, name := range []string{"server", "token", "timeout", "verbose"} {
		_ = settings.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(uploadCmd, listCmd, recentCmd, statsCmd, showCmd, deleteCmd, watchCmd, dashboardCmd)
}

func initLogger(verbose bool) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("imageproof: " + err.Error() + "\n")
		os.Exit(1)
	}
}
