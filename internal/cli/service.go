package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var serviceHeaders = []string{"NAME", "STATE", "OWNER", "DEPENDENCIES", "UNRESOLVED"}

func serviceRow(s ServiceResponse) []string {
	return []string{
		s.Name,
		s.State,
		dash(s.Owner),
		dash(strings.Join(s.Dependencies, ",")),
		dash(strings.Join(s.Unresolved, ",")),
	}
}

func serviceCard(s ServiceResponse) []Field {
	return []Field{
		{"Name", s.Name},
		{"State", s.State},
		{"Owner", dash(s.Owner)},
		{"Dependencies", list(s.Dependencies)},
		{"Unresolved", list(s.Unresolved)},
		{"Provides", list(s.Provides)},
		{"Error", dash(s.Error)},
	}
}

// NewServiceCmd создаёт группу команд для управления сервисами контейнера.
func NewServiceCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"svc"},
		Short:   "Inspect and control container services",
	}

	cmd.AddCommand(
		newServiceListCmd(clientFn, outputFn),
		newServiceShowCmd(clientFn, outputFn),
		newServiceActionCmd("start", "Allow a stopped service to start again", (*Client).StartService, clientFn, outputFn),
		newServiceActionCmd("stop", "Stop a service and its dependents", (*Client).StopService, clientFn, outputFn),
		newServiceActionCmd("retry", "Retry a failed service", (*Client).RetryService, clientFn, outputFn),
	)

	return cmd
}

func newServiceListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListServicesOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List services",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := clientFn().ListServices(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(services))
			for i, s := range services {
				rows[i] = serviceRow(s)
			}

			outputFn().Print(serviceHeaders, rows, services)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.State, "state", "", "Filter by state (DOWN, STARTING, UP, STOPPING, FAILED)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "Filter by owning deployment ID")

	return cmd
}

func newServiceShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show service details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := clientFn().GetService(args[0])
			if err != nil {
				return err
			}

			outputFn().Card(serviceCard(*svc), svc)
			return nil
		},
	}
}

type serviceAction func(c *Client, name string) (*ServiceResponse, error)

func newServiceActionCmd(use, short string, action serviceAction, clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := action(clientFn(), args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Service %s: %s requested", svc.Name, use))
			out.Print(serviceHeaders, [][]string{serviceRow(*svc)}, svc)
			return nil
		},
	}
}

// NewCapabilityCmd создаёт команду просмотра привязок capabilities.
func NewCapabilityCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "List capability bindings",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caps, err := clientFn().ListCapabilities()
			if err != nil {
				return err
			}

			rows := make([][]string, len(caps))
			for i, c := range caps {
				rows[i] = []string{c.Capability, c.Service}
			}

			outputFn().Print([]string{"CAPABILITY", "SERVICE"}, rows, caps)
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
