package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/controller"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/pkg/hockey"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	autoAccept bool
	deleteOnly bool

	feedbackName    string
	feedbackEmail   string
	feedbackSubject string
)

// Populated by the root command's PersistentPreRunE.
var (
	appConfig *config.Config
	client    *hockey.Client
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hockey-client",
		Short: "Terminal host for the HockeySDK Go client",
		Long: `hockey-client embeds the HockeySDK the way an application would: it checks
for new builds, uploads crash reports, sends feedback and telemetry.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if client == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return client.Shutdown(ctx)
		},
	}

	defaultConfig := os.Getenv("HOCKEY_CONFIG")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Configuration file path (default searches /etc/hockey, $HOME/.hockey and .)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check once for a new build and show the update prompt",
		RunE:  runCheck,
	}
	checkCmd.Flags().BoolVarP(&autoAccept, "yes", "y", false, "Accept the update prompt without asking")

	crashesCmd := &cobra.Command{
		Use:   "crashes",
		Short: "Upload pending crash reports",
		RunE:  runCrashes,
	}
	crashesCmd.Flags().BoolVar(&deleteOnly, "delete", false, "Delete pending reports instead of uploading them")

	trackCmd := &cobra.Command{
		Use:   "track EVENT [key=value...]",
		Short: "Send a telemetry event",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrack,
	}

	feedbackCmd := &cobra.Command{
		Use:   "feedback TEXT",
		Short: "Send feedback, continuing the stored thread if there is one",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFeedback,
	}
	feedbackCmd.Flags().StringVar(&feedbackName, "name", "", "Sender name")
	feedbackCmd.Flags().StringVar(&feedbackEmail, "email", "", "Sender email")
	feedbackCmd.Flags().StringVar(&feedbackSubject, "subject", "", "Subject")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll for updates and download new builds until interrupted",
		RunE:  runLoop,
	}

	rootCmd.AddCommand(checkCmd, crashesCmd, trackCmd, feedbackCmd, runCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %q: %w", configPath, err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logging.Setup(cfg.Log)

	var opts []hockey.Option
	if cmd.Name() == "check" && !autoAccept {
		opts = append(opts, hockey.WithCrashPrompt(hockey.CrashPromptFunc(askSendCrashes)))
	}
	c, err := hockey.New(cmd.Context(), cfg, opts...)
	if err != nil {
		return err
	}
	appConfig, client = cfg, c
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ui := newTerminalUI(appConfig.PackageName, stdin, cmd.OutOrStdout(), autoAccept)
	task := client.Register(cmd.Context(), ui)
	if task == nil {
		return nil
	}
	<-task.Done()
	if ui.accepted() {
		dest := controller.New(client, nil, nil, appConfig).PackagePath(ui.latest())
		if err := client.DownloadUpdate(cmd.Context(), dest); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded to %s\n", dest)
	}
	return nil
}

func runCrashes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if deleteOnly {
		return client.Crashes().DeletePending(ctx)
	}
	sent, err := client.Crashes().SendPending(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d crash reports\n", sent)
	return err
}

func runTrack(cmd *cobra.Command, args []string) error {
	properties := make(map[string]string)
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("property %q is not key=value", kv)
		}
		properties[key] = value
	}
	client.Telemetry().TrackEvent(args[0], properties, nil)
	return client.Telemetry().SendPendingData(cmd.Context())
}

func runFeedback(cmd *cobra.Command, args []string) error {
	resp, err := client.Feedback().Send(cmd.Context(), hockey.FeedbackMessage{
		Name:    feedbackName,
		Email:   feedbackEmail,
		Subject: feedbackSubject,
		Text:    strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Feedback sent, thread %s\n", resp.Token)
	return nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.Logger()
	log.Info("Update loop starting...")
	client.Register(ctx, nil)
	defer client.Crashes().Recover()

	loop := controller.New(client, client.Crashes(), client.Telemetry(), appConfig)
	err := loop.Run(ctx, func(outcome controller.Outcome, err error) {
		if outcome.PackagePath != "" {
			log.Infof("New build ready at %s", outcome.PackagePath)
		}
	})
	if errors.Is(err, context.Canceled) {
		log.Info("Update loop stopped.")
		return nil
	}
	return err
}
