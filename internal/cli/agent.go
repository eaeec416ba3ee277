package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aman-churiwal/loadmon/internal/agent"
	"github.com/aman-churiwal/loadmon/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAgentCommand(opts *options) *cobra.Command {
	var serverID int
	var collectorURL string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Report this node's CPU load to a collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("server-id") {
				cfg.Agent.ServerID = serverID
			}
			if cmd.Flags().Changed("collector-url") {
				cfg.Agent.CollectorURL = collectorURL
			}
			if err := cfg.ValidateAgent(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			log, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cipher, err := newCipher(cfg.Envelope.Secret)
			if err != nil {
				return err
			}

			reporter := agent.NewReporter(agent.Config{
				ServerID:     cfg.Agent.ServerID,
				CollectorURL: cfg.Agent.CollectorURL,
				Interval:     cfg.Agent.Interval,
				Timeout:      cfg.Agent.Timeout,
			}, agent.NewCPUSampler(), cipher, log.Named("agent"))

			log.Info("Starting load reporter",
				zap.Int("server_id", cfg.Agent.ServerID),
				zap.String("collector", reporter.Endpoint()),
				zap.Duration("interval", reporter.Interval()),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := reporter.Start(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&serverID, "server-id", 0, "id of this node on the collector")
	cmd.Flags().StringVar(&collectorURL, "collector-url", "", "collector update_load URL")

	return cmd
}
