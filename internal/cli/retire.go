package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retireCmd = &cobra.Command{
	Use:   "retire <packet-id>",
	Short: "Remove a packet's derived records from every backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetire,
}

func runRetire(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.Orch.Retire(ctx, args[0]); err != nil {
		return fmt.Errorf("retire: %w", err)
	}
	fmt.Printf("Retired %s\n", args[0])
	return nil
}
