package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	datamodel "github.com/frahmantamala/billpay-relay/internal/core/datamodel/order"
	"github.com/frahmantamala/billpay-relay/internal/money"
	"github.com/frahmantamala/billpay-relay/internal/order"
)

const demoOrderPrefix = "DEMO-"

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo orders",
	Long:  `Pre-registers a handful of demo orders through the reconciliation engine for local testing of the return and callback flows.`,
	Run: func(cmd *cobra.Command, args []string) {
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

		if clearData {
			res := deps.Gorm.WithContext(ctx).
				Where("order_id LIKE ?", demoOrderPrefix+"%").
				Delete(&datamodel.Order{})
			if res.Error != nil {
				log.Fatalf("failed to clear demo orders: %v", res.Error)
			}
			fmt.Println("Cleared demo orders:", res.RowsAffected)
		}

		name, email, phone := "Ali Bin Abu", "ali@example.com", "0123456789"
		demo := []struct {
			id     string
			amount int64
			bill   string
		}{
			{demoOrderPrefix + "1001", 5000, ""},
			{demoOrderPrefix + "1002", 1250, "demo-bill-1002"},
			{demoOrderPrefix + "1003", 99900, "demo-bill-1003"},
		}

		for _, d := range demo {
			amount := d.amount
			req := order.RegisterRequest{
				OrderID:     d.id,
				AmountCents: &amount,
				PayerName:   &name,
				PayerEmail:  &email,
				PayerPhone:  &phone,
			}
			if d.bill != "" {
				bill := d.bill
				req.BillCode = &bill
			}

			o, err := deps.Orders.PreRegister(ctx, req)
			if err != nil {
				log.Fatalf("failed to seed order %s: %v", d.id, err)
			}
			fmt.Printf("Seeded order %s (%s %s)\n", o.OrderID, o.Currency, money.FormatCentsPtr(o.AmountCents))
		}
	},
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing demo orders before seeding")
}
