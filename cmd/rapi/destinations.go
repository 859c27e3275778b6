package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func destinationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "type", Usage: "FTP or Physical", Required: true},
		&cli.StringFlag{Name: "name", Usage: "destination name", Required: true},
		&cli.StringFlag{Name: "hostname", Usage: "FTP host"},
		&cli.StringFlag{Name: "ftp-username", Usage: "FTP username"},
		&cli.StringFlag{Name: "ftp-password", Usage: "FTP password"},
		&cli.StringFlag{Name: "path", Usage: "FTP path"},
		&cli.StringFlag{Name: "customer-name"},
		&cli.StringFlag{Name: "contact-email"},
		&cli.StringFlag{Name: "organization"},
		&cli.StringFlag{Name: "phone"},
		&cli.StringSliceFlag{Name: "address", Usage: "address line; repeat up to three times"},
		&cli.StringFlag{Name: "city"},
		&cli.StringFlag{Name: "state-prov"},
		&cli.StringFlag{Name: "country"},
		&cli.StringFlag{Name: "postal-code"},
		&cli.StringFlag{Name: "classification"},
	}
}

func newDestinationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "destinations",
		Usage: "Manage order delivery destinations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your destinations, or those available for a record",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "collection"},
					&cli.StringFlag{Name: "record", Usage: "record id; requires --collection"},
				},
				Action: listDestinationsAction,
			},
			{
				Name:   "create",
				Usage:  "Create a destination",
				Flags:  destinationFlags(),
				Action: saveDestinationAction(false),
			},
			{
				Name:   "update",
				Usage:  "Replace an existing destination",
				Flags:  destinationFlags(),
				Action: saveDestinationAction(true),
			},
			{
				Name:      "delete",
				Usage:     "Delete a destination",
				ArgsUsage: "<type> <name>",
				Action:    deleteDestinationAction,
			},
		},
	}
}

func listDestinationsAction(ctx context.Context, cmd *cli.Command) error {
	coll, record := cmd.String("collection"), cmd.String("record")
	if record != "" && coll == "" {
		return fmt.Errorf("--record requires --collection")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	dests, err := a.client.ListDestinations(ctx, coll, rapi.ID(record))
	if err != nil {
		return err
	}
	if dests == nil {
		dests = []rapi.Destination{}
	}
	return writeOutput(stdout(cmd), a.output, dests)
}

// destinationFromCommand builds and validates the destination described by
// the command's flags.
func destinationFromCommand(cmd *cli.Command) (rapi.Destination, error) {
	d := rapi.Destination{
		Type:           rapi.DestinationType(cmd.String("type")),
		Name:           cmd.String("name"),
		Hostname:       cmd.String("hostname"),
		Username:       cmd.String("ftp-username"),
		Password:       cmd.String("ftp-password"),
		Path:           cmd.String("path"),
		CustomerName:   cmd.String("customer-name"),
		ContactEmail:   cmd.String("contact-email"),
		Organization:   cmd.String("organization"),
		Phone:          cmd.String("phone"),
		City:           cmd.String("city"),
		StateProv:      cmd.String("state-prov"),
		Country:        cmd.String("country"),
		PostalCode:     cmd.String("postal-code"),
		Classification: cmd.String("classification"),
	}
	if addrs := cmd.StringSlice("address"); len(addrs) > 0 {
		if err := d.SetAddresses(addrs); err != nil {
			return d, err
		}
	}
	return d, d.Validate()
}

func saveDestinationAction(update bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		d, err := destinationFromCommand(cmd)
		if err != nil {
			return err
		}
		a, ctx, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if update {
			return a.client.UpdateDestination(ctx, d)
		}
		return a.client.CreateDestination(ctx, d)
	}
}

func deleteDestinationAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected 2 arguments: type and name")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	return a.client.DeleteDestination(ctx, rapi.DestinationType(cmd.Args().Get(0)), cmd.Args().Get(1))
}
