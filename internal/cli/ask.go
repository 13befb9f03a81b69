package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dstrand/trivium/internal/orchestrator"
)

var (
	askMaxResults int
	askTimeoutMS  int
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a question and get a synthesized, cited answer",
	Long: `Ask a question about the knowledge base. The query is classified,
planned across the configured backends, and the results are synthesized
into an answer with packet citations.

Examples:
  trivium ask "How does the auth service work?"
  trivium ask "Who owns the Atlas project?" -n 5`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askMaxResults, "limit", "n", 0, "max results per backend")
	askCmd.Flags().IntVar(&askTimeoutMS, "timeout-ms", 0, "query timeout in milliseconds")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	resp, err := a.Orch.Answer(ctx, orchestrator.QueryRequest{
		Query:      args[0],
		MaxResults: askMaxResults,
		TimeoutMS:  askTimeoutMS,
	})
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}

	fmt.Println(resp.Answer)
	fmt.Println()

	faint := color.New(color.Faint)
	if len(resp.Citations) > 0 {
		color.New(color.Bold).Println("Sources:")
		for _, id := range resp.Citations {
			faint.Printf("  %s\n", id)
		}
	}

	label := color.New(color.FgGreen)
	if resp.Completeness != "complete" {
		label = color.New(color.FgYellow)
	}
	faint.Printf("strategy=%s ", resp.StrategyUsed)
	label.Printf("[%s]", resp.Completeness)
	if resp.Degraded {
		color.New(color.FgYellow).Print(" (degraded)")
	}
	fmt.Println()

	for _, s := range resp.PerStepStatus {
		faint.Printf("  %-12s %-8s %dms\n", s.Adapter, s.Status, s.LatencyMS)
	}
	return nil
}
