package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSignalCmd создаёт группу команд для доставки сигналов.
func NewSignalCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Deliver signals to runs",
	}

	cmd.AddCommand(newSignalSendCmd(clientFn, outputFn))

	return cmd
}

func newSignalSendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var runID string
	var payload []string

	cmd := &cobra.Command{
		Use:   "send NAME",
		Short: "Send a named signal to a suspended run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := SignalRequest{RunID: runID}
			if len(payload) > 0 {
				req.Payload = make(map[string]any)
				for _, kv := range payload {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
					}
					req.Payload[parts[0]] = parts[1]
				}
			}

			if err := client.DeliverSignal(args[0], req); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Signal %s delivered to run %s", args[0], runID))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Target run ID (required)")
	cmd.Flags().StringSliceVar(&payload, "payload", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.MarkFlagRequired("run-id")

	return cmd
}
