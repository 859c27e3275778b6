package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-rapi-client/pkg/client"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func newOrderCommand() *cli.Command {
	return &cli.Command{
		Name:  "order",
		Usage: "Submit and track orders",
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Order the records in a JSON file (the raw output of search)",
				ArgsUsage: "<records.json|->",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "priority",
						Usage: "Low, Medium, High or Urgent",
						Value: string(rapi.PriorityMedium),
					},
					&cli.StringSliceFlag{
						Name:    "parameter",
						Aliases: []string{"p"},
						Usage:   "order parameter KEY=VALUE",
					},
					&cli.BoolFlag{
						Name:  "payload",
						Usage: "the file is a complete order payload rather than a record list",
					},
				},
				Action: submitOrderAction,
			},
			{
				Name:  "list",
				Usage: "List your order items",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "start", Usage: "earliest submission date"},
					&cli.StringFlag{Name: "end", Usage: "latest submission date"},
					&cli.StringFlag{Name: "status", Usage: "only items with this status"},
					&cli.IntFlag{Name: "max-orders", Usage: "maximum number of orders", Value: 100},
				},
				Action: listOrdersAction,
			},
			{
				Name:      "get",
				Usage:     "Fetch an order item, or every item of an order with --order",
				ArgsUsage: "<item-id|order-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "order", Usage: "the argument is an order id"},
				},
				Action: getOrderAction,
			},
			{
				Name:      "find",
				Usage:     "Find the latest order item of each record in a JSON file",
				ArgsUsage: "<records.json|->",
				Action:    findOrdersAction,
			},
			{
				Name:      "cancel",
				Usage:     "Cancel an order item",
				ArgsUsage: "<order-id> <item-id>",
				Action:    cancelOrderAction,
			},
			{
				Name:      "params",
				Usage:     "Show the order parameters available for a record",
				ArgsUsage: "<collection> <record-id>",
				Action:    orderParamsAction,
			},
		},
	}
}

func submitOrderAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: records file")
	}
	params, err := parseParameters(cmd.StringSlice("parameter"))
	if err != nil {
		return err
	}

	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var items []*rapi.OrderItem
	if cmd.Bool("payload") {
		var payload rapi.OrderPayload
		if err := readJSONFile(cmd, cmd.Args().First(), &payload); err != nil {
			return err
		}
		items, err = a.client.SubmitOrderPayload(ctx, payload, cmd.String("priority"))
	} else {
		var records []*rapi.Record
		if err := readJSONFile(cmd, cmd.Args().First(), &records); err != nil {
			return err
		}
		items, err = a.client.Order(ctx, client.OrderRequest{
			Records:    records,
			Priority:   cmd.String("priority"),
			Parameters: params,
		})
	}
	if len(items) > 0 {
		if werr := writeOutput(stdout(cmd), a.output, items); werr != nil {
			return werr
		}
	}
	return err
}

func listOrdersAction(ctx context.Context, cmd *cli.Command) error {
	start, err := parseTime(cmd.String("start"))
	if err != nil {
		return err
	}
	end, err := parseTime(cmd.String("end"))
	if err != nil {
		return err
	}

	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	items, err := a.client.ListOrders(ctx, client.ListOrdersParams{
		Start:     start,
		End:       end,
		MaxOrders: cmd.Int("max-orders"),
		Status:    rapi.OrderStatus(cmd.String("status")),
	})
	if err != nil {
		return err
	}
	return writeOutput(stdout(cmd), a.output, nonNil(items))
}

func getOrderAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: item id or order id")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	id := rapi.ID(cmd.Args().First())
	if cmd.Bool("order") {
		items, err := a.client.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		return writeOutput(stdout(cmd), a.output, nonNil(items))
	}
	item, err := a.client.GetOrderItem(ctx, id)
	if err != nil {
		return err
	}
	return writeOutput(stdout(cmd), a.output, item)
}

func findOrdersAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: records file")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var records []*rapi.Record
	if err := readJSONFile(cmd, cmd.Args().First(), &records); err != nil {
		return err
	}
	found, unfound, err := a.client.GetOrdersByRecords(ctx, records)
	if err != nil {
		return err
	}
	return writeOutput(stdout(cmd), a.output, struct {
		Found   []*rapi.OrderItem `json:"found"`
		Unfound []rapi.ID         `json:"unfound"`
	}{nonNil(found), append([]rapi.ID{}, unfound...)})
}

func cancelOrderAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected 2 arguments: order id and item id")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	return a.client.CancelOrderItem(ctx, rapi.ID(cmd.Args().Get(0)), rapi.ID(cmd.Args().Get(1)))
}

func orderParamsAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected 2 arguments: collection and record id")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	raw, err := a.client.GetOrderParameters(ctx, cmd.Args().Get(0), rapi.ID(cmd.Args().Get(1)))
	if err != nil {
		return err
	}
	return writeOutput(stdout(cmd), a.output, raw)
}

func nonNil(items []*rapi.OrderItem) []*rapi.OrderItem {
	if items == nil {
		return []*rapi.OrderItem{}
	}
	return items
}
