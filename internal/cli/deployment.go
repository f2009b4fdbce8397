package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var deploymentHeaders = []string{"ID", "NAME", "STATUS", "SERVICES", "FAILED AT", "STARTED"}

func deploymentRow(d DeploymentResponse) []string {
	failedAt := "-"
	if d.FailedPhase != "" {
		failedAt = d.FailedPhase + "/" + d.FailedProcessor
	}
	return []string{
		d.ID,
		d.Name,
		d.Status,
		strconv.Itoa(len(d.Services)),
		failedAt,
		d.StartedAt,
	}
}

func deploymentCard(d DeploymentResponse) []Field {
	fields := []Field{
		{"ID", d.ID},
		{"Name", d.Name},
		{"Status", d.Status},
		{"Services", list(d.Services)},
		{"Started", d.StartedAt},
		{"Finished", dash(d.FinishedAt)},
		{"Duration", strconv.FormatInt(d.DurationMs, 10) + "ms"},
	}
	if d.FailedPhase != "" {
		fields = append(fields,
			Field{"Failed at", d.FailedPhase + "/" + d.FailedProcessor},
			Field{"Error", d.Error},
			Field{"Rolled back", list(d.RolledBack)},
		)
	}
	return fields
}

// NewDeploymentCmd создаёт группу команд для управления deployments.
func NewDeploymentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployment",
		Aliases: []string{"dep"},
		Short:   "Manage deployments",
	}

	cmd.AddCommand(
		newDeployCmd(clientFn, outputFn),
		newDeploymentListCmd(clientFn, outputFn),
		newDeploymentShowCmd(clientFn, outputFn),
		newUndeployCmd(clientFn, outputFn),
	)

	return cmd
}

func newDeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy FILE",
		Short: "Deploy an archive described by a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := ReadArchive(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			d, err := clientFn().Deploy(archive)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) {
					if failed, ok := apiErr.FailedDeployment(); ok {
						out.Print(deploymentHeaders, [][]string{deploymentRow(*failed)}, failed)
						if len(failed.RolledBack) > 0 {
							out.Error("rolled back: " + strings.Join(failed.RolledBack, ", "))
						}
					}
				}
				return err
			}

			out.Success(fmt.Sprintf("Deployment created: %s", d.ID))
			out.Print(deploymentHeaders, [][]string{deploymentRow(*d)}, d)
			return nil
		},
	}
}

func newDeploymentListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListDeploymentsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			deployments, err := clientFn().ListDeployments(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(deployments))
			for i, d := range deployments {
				rows[i] = deploymentRow(d)
			}

			outputFn().Print(deploymentHeaders, rows, deployments)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (DEPLOYED, FAILED, UNDEPLOYED)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Filter by archive name")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of deployments")

	return cmd
}

func newDeploymentShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show deployment details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := clientFn().GetDeployment(args[0])
			if err != nil {
				return err
			}

			outputFn().Card(deploymentCard(*d), d)
			return nil
		},
	}
}

func newUndeployCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy ID",
		Short: "Undeploy a deployed archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().Undeploy(args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Deployment %s undeployed", args[0]))
			return nil
		},
	}
}

// ReadArchive читает описание архива из YAML или JSON файла
// и возвращает его в JSON для API.
func ReadArchive(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive file: %w", err)
	}
	return ParseArchive(data)
}

// ParseArchive конвертирует YAML (или JSON) описание архива в JSON.
func ParseArchive(data []byte) (json.RawMessage, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse archive file: %w", err)
	}
	if name, _ := doc["name"].(string); strings.TrimSpace(name) == "" {
		return nil, errors.New("archive file: name is required")
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	return out, nil
}
