package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

func newAccountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Inspect the authenticated account",
		Commands: []*cli.Command{
			{
				Name:  "info",
				Usage: "Show the metadata of your account",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, ctx, err := newApp(ctx, cmd)
					if err != nil {
						return err
					}
					defer a.close()

					md, err := a.client.GetUserMetadata(ctx)
					if err != nil {
						return err
					}
					return writeOutput(stdout(cmd), a.output, md)
				},
			},
			{
				Name:  "logout",
				Usage: "End the server-side session",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, ctx, err := newApp(ctx, cmd)
					if err != nil {
						return err
					}
					defer a.close()

					return a.client.Close(ctx)
				},
			},
		},
	}
}
