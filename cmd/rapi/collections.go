package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func newCollectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "Work with RAPI collections and their fields",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all collections",
				Action: listCollectionsAction,
			},
			{
				Name:      "fields",
				Usage:     "List the search and result fields of a collection",
				ArgsUsage: "<collection>",
				Action:    collectionFieldsAction,
			},
			{
				Name:      "choices",
				Usage:     "List the choices of a search field",
				ArgsUsage: "<collection> <field>",
				Action:    fieldChoicesAction,
			},
		},
	}
}

type collectionSummary struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases,omitempty"`
}

func listCollectionsAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 0 {
		return fmt.Errorf("no arguments expected")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	colls, err := a.client.Collections(ctx)
	if err != nil {
		return err
	}
	out := make([]collectionSummary, 0, len(colls))
	for _, c := range colls {
		out = append(out, collectionSummary{ID: c.ID, Title: c.Title, Aliases: c.Aliases})
	}
	return writeOutput(stdout(cmd), a.output, out)
}

type fieldSummary struct {
	Title    string        `json:"title"`
	ID       string        `json:"id"`
	DataType rapi.DataType `json:"datatype"`
}

func summarizeFields(fields []*rapi.Field) []fieldSummary {
	out := make([]fieldSummary, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldSummary{Title: f.Title, ID: f.ID, DataType: f.DataType})
	}
	return out
}

func collectionFieldsAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: collection")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	search, results, err := a.client.AvailableFields(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	return writeOutput(stdout(cmd), a.output, map[string][]fieldSummary{
		"search":  summarizeFields(search),
		"results": summarizeFields(results),
	})
}

func fieldChoicesAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected 2 arguments: collection and field")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	choices, err := a.client.FieldChoices(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	if choices == nil {
		choices = []rapi.Choice{}
	}
	return writeOutput(stdout(cmd), a.output, choices)
}
