package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/solatis/tidegate/internal/action"
	"github.com/solatis/tidegate/internal/core/api"
	"github.com/solatis/tidegate/internal/types"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Make one decision offline against the configured rules",
	Long: `Reads a decision input document and prints the decision output.
Use --input - to read from stdin.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("input", "-", "decision input JSON file, - for stdin")
	evaluateCmd.Flags().Bool("privileged", false, "resolve actions for a server-side caller")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	path, _ := cmd.Flags().GetString("input")
	privileged, _ := cmd.Flags().GetBool("privileged")

	in, err := readDecisionInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	a, err := setup(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	service, err := a.decisionService(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	caller := action.CallerBrowser
	if privileged {
		caller = action.CallerPrivileged
	}
	out, err := service.Decide(ctx, api.Request{Input: in, Caller: caller})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readDecisionInput(stdin io.Reader, path string) (types.DecisionInput, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, types.MaxDecisionBodySize+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return types.DecisionInput{}, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) > types.MaxDecisionBodySize {
		return types.DecisionInput{}, fmt.Errorf("%w: input exceeds %d bytes", types.ErrInvalidDecisionInput, types.MaxDecisionBodySize)
	}

	var in types.DecisionInput
	if err := json.Unmarshal(data, &in); err != nil {
		return types.DecisionInput{}, fmt.Errorf("%w: %v", types.ErrInvalidDecisionInput, err)
	}
	return in, nil
}
