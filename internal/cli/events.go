package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/mq"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// NewEventsCmd создаёт команду, печатающую события deployer из RabbitMQ.
// В отличие от остальных команд работает напрямую с шиной событий.
func NewEventsCmd(outputFn func() *Output) *cobra.Command {
	var (
		amqpURL  string
		patterns []string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream service and deployment events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := telemetry.SetupLogger(telemetry.LogConfig{Level: "WARN", Format: "text"})

			conn, err := mq.NewConnection(mq.ConnectionConfig{
				URL:       amqpURL,
				OnConnect: mq.DeclareTopology,
				Logger:    logger,
			})
			if err != nil {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
			defer conn.Close()

			keys := make([]mq.RoutingKey, len(patterns))
			for i, p := range patterns {
				keys[i] = mq.RoutingKey(p)
			}

			out := outputFn()
			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Patterns: keys,
				Prefetch: 32,
				Handler: func(ctx context.Context, d *mq.Delivery) error {
					return PrintEvent(out, d)
				},
			})

			out.Success("Listening for events, press Ctrl+C to stop")
			err = consumer.Start(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	defaultURL := os.Getenv("RABBITMQ_URL")
	if defaultURL == "" {
		defaultURL = mq.DefaultURL()
	}
	cmd.Flags().StringVar(&amqpURL, "rabbitmq-url", defaultURL, "RabbitMQ URL")
	cmd.Flags().StringSliceVar(&patterns, "pattern", []string{string(mq.PatternAll)}, "Routing key patterns (service.*, deployment.failed, ...)")

	return cmd
}

// PrintEvent печатает одно событие: строку таблицы или JSON.
func PrintEvent(out *Output, d *mq.Delivery) error {
	if out.jsonMode {
		out.JSON(d.Message)
		return nil
	}

	switch d.Message.Type {
	case mq.MessageTypeServiceStateChanged:
		ev, err := mq.ParsePayload[domain.ServiceEvent](&d.Message)
		if err != nil {
			return err
		}
		from := string(ev.From)
		if from == "" {
			from = "-"
		}
		line := fmt.Sprintf("%s  service     %s  %s -> %s", ev.Timestamp.Format("15:04:05.000"), ev.Service, from, ev.To)
		if ev.Error != "" {
			line += "  (" + ev.Error + ")"
		}
		out.Line(line)

	case mq.MessageTypeDeploymentFinished:
		dep, err := mq.ParsePayload[domain.Deployment](&d.Message)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s  deployment  %s  %s", dep.FinishedAt.Format("15:04:05.000"), dep.Name, dep.Status)
		if dep.FailedPhase != "" {
			line += fmt.Sprintf("  at %s/%s: %s", dep.FailedPhase, dep.FailedProcessor, dep.Error)
		}
		out.Line(line)

	default:
		out.Line(fmt.Sprintf("%s  %s", d.RoutingKey, d.Message.Type))
	}
	return nil
}
