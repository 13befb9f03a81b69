package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dstrand/trivium/internal/packet"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json...>",
	Short: "Ingest knowledge packets from JSON files",
	Long: `Validate each packet file and fan it out to every backend whose
sub-payload it carries. Files that fail validation are reported and
skipped; the rest are still ingested.

Examples:
  trivium ingest packet.json
  trivium ingest exports/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	ok := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	failures := 0

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fail.Printf("✗ %s: %v\n", path, err)
			failures++
			continue
		}
		var p packet.Packet
		if err := json.Unmarshal(data, &p); err != nil {
			fail.Printf("✗ %s: invalid JSON: %v\n", path, err)
			failures++
			continue
		}
		if err := a.Orch.Ingest(ctx, &p); err != nil {
			fail.Printf("✗ %s: %v\n", path, err)
			failures++
			continue
		}
		ok.Printf("✓ %s: %s\n", path, p.PacketID)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d packets failed", failures, len(args))
	}
	return nil
}
