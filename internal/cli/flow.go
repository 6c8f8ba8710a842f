package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flow definitions",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowStartCmd(clientFn, outputFn),
	)

	return cmd
}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "STEPS"}
			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = []string{f.Name, strconv.Itoa(len(f.Steps))}
			}

			out.Print(headers, rows, flows)
			return nil
		},
	}
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show flow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flow, err := client.GetFlow(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP", "TYPE", "DEPENDS_ON", "TARGET"}
			rows := make([][]string, len(flow.Steps))
			for i, s := range flow.Steps {
				target := ""
				switch s.Type {
				case "task":
					target = s.ServiceName + "/" + s.HandlerName
				case "wait_signal":
					target = s.SignalName
				case "wait_timer":
					target = fmt.Sprintf("%s (%dms)", s.TimerKey, s.DelayMs)
				}
				rows[i] = []string{s.Name, s.Type, strings.Join(s.DependsOn, ","), target}
			}

			out.Print(headers, rows, flow)
			return nil
		},
	}
}

func newFlowStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "Start a new run of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := StartRunRequest{}
			if len(params) > 0 {
				req.Params = make(map[string]any)
				for _, kv := range params {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
					}
					req.Params[parts[0]] = parts[1]
				}
			}

			run, err := client.StartRun(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "FLOW", "STATUS", "STARTED"},
				[][]string{{run.ID, run.FlowName, run.Status, run.StartedAt}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&params, "param", nil, "Trigger params as KEY=VALUE (repeatable)")

	return cmd
}
