package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rpcbatch/internal/client"
	"rpcbatch/internal/rpcerr"
	"rpcbatch/internal/scheduler"
	"rpcbatch/internal/service"
	"rpcbatch/internal/transport"
)

var callTimeout time.Duration

var callCmd = &cobra.Command{
	Use:   "call METHOD PARAMS [METHOD PARAMS ...]",
	Short: "Issue calls in one batch",
	Long: `Issue every METHOD/PARAMS pair within one scheduling tick so they travel as a
single batch. PARAMS is a JSON object or array, or "-" for none. Each result is
printed as one JSON line, in argument order.`,
	Example: `  rpcbatch call --loopback create '{"name":"ann"}' getAll '{}'
  rpcbatch call --endpoint https://api.example.com/rpc get '{"id":"1"}' delete '{"id":1}'`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected METHOD PARAMS pairs, got %d arguments", len(args))
		}
		return nil
	},
	RunE: runCall,
}

func init() {
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "how long to wait for all results")
}

// callOutput is one printed result line
type callOutput struct {
	Method string          `json:"method"`
	ID     int64           `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *errorOutput    `json:"error,omitempty"`
}

type errorOutput struct {
	Name    string          `json:"name,omitempty"`
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := client.Options{Config: cfg, Logger: log}
	if globalFlags.Loopback {
		lb := transport.NewLoopback(log)
		service.Register(lb, service.NewMemory())
		opts.Transport = lb
	}

	c, err := client.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	calls := make([]*scheduler.Call, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		params, err := parseParams(args[i+1])
		if err != nil {
			calls = append(calls, scheduler.Rejected(args[i], err))
			continue
		}
		calls = append(calls, c.Call(args[i], params))
	}

	// the arguments are the whole burst, no need to wait out the flush window
	c.Flush()
	log.Debug().Int("calls", len(calls)).Msg("calls flushed")

	waitCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	failed := printResults(waitCtx, cmd.OutOrStdout(), calls)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := c.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("error during shutdown")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d calls failed", failed, len(calls))
	}
	return nil
}

func parseParams(arg string) (interface{}, error) {
	if arg == "-" || arg == "" {
		return nil, nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("params are not valid JSON: %s", arg)
	}
	return json.RawMessage(arg), nil
}

// printResults waits for each call in order and writes one JSON line per call.
// It returns the number of calls that failed.
func printResults(ctx context.Context, w io.Writer, calls []*scheduler.Call) int {
	enc := json.NewEncoder(w)
	failed := 0

	for _, call := range calls {
		out := callOutput{Method: call.Method(), ID: call.ID()}

		result, err := call.Wait(ctx)
		if err != nil {
			failed++
			out.Error = toErrorOutput(err)
		} else {
			out.Result = result
		}

		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write result: %v\n", err)
		}
	}
	return failed
}

func toErrorOutput(err error) *errorOutput {
	var typed *rpcerr.Error
	if errors.As(err, &typed) {
		return &errorOutput{
			Name:    typed.Name,
			Code:    typed.Code,
			Message: typed.Message,
			Data:    typed.Data,
		}
	}
	return &errorOutput{Message: err.Error()}
}
