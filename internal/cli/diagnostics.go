package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDiagnosticsCmd создаёт команду отчёта о сервисах, которые не поднялись.
func NewDiagnosticsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Report services that are not UP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := clientFn().Diagnostics(refresh)
			if err != nil {
				return err
			}

			rows := make([][]string, len(report.Problems))
			for i, p := range report.Problems {
				detail := p.Error
				if len(p.Unresolved) > 0 {
					detail = "missing " + strings.Join(p.Unresolved, ", ")
				}
				rows[i] = []string{p.Service, p.Kind, p.State, dash(detail)}
			}

			out := outputFn()
			out.Print([]string{"SERVICE", "KIND", "STATE", "DETAIL"}, rows, report)
			out.Success(fmt.Sprintf("%d/%d services UP at %s", report.Up, report.Total, report.At))
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Build a fresh report instead of the last scheduled one")

	return cmd
}
