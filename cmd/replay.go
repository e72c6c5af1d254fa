package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/billpay-relay/internal/order"
)

var replayCmd = &cobra.Command{
	Use:   "replay key=value [key=value...]",
	Short: "Push a synthetic callback through the reconciliation engine",
	Long: `Replays a gateway callback from the command line, for example after an outage:

  billpay-relay replay order_id=ORD1 billcode=abc123 status_id=1 amount=50.00`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		values, err := parseKeyValues(args)
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		cfg, err := LoadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		deps, err := NewDependencies(ctx, cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		updated, err := deps.Orders.Replay(ctx, order.ParamsFromValues(values))
		if err != nil {
			log.Fatalf("replay failed: %v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(order.NewStatusView(updated))
	},
}

func parseKeyValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		values[key] = value
	}
	return values, nil
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
