package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/internal/logger"
	"github.com/robert-malhotra/go-rapi-client/pkg/client"
	"github.com/robert-malhotra/go-rapi-client/pkg/naming"
	"github.com/robert-malhotra/go-rapi-client/pkg/query"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func newSearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search one or more collections",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "collection",
				Aliases:  []string{"c"},
				Usage:    "collection id, title or alias; repeat to search several",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   `field filter such as "Beam Mnemonic=16M11|16M13"`,
			},
			&cli.StringSliceFlag{
				Name:  "feature",
				Usage: `spatial filter "[OPERATOR;]WKT, GeoJSON, coordinates or file"`,
			},
			&cli.StringFlag{
				Name:    "dates",
				Aliases: []string{"d"},
				Usage:   `date ranges "20190101_000000-20190201_000000" or "7 days", comma separated`,
			},
			&cli.IntFlag{
				Name:    "max-results",
				Aliases: []string{"m"},
				Usage:   "maximum records per collection (0 for all)",
			},
			&cli.StringSliceFlag{
				Name:  "result-field",
				Usage: "additional result field to request",
			},
			&cli.StringFlag{
				Name:  "form",
				Usage: "raw, brief, full or geojson",
				Value: string(client.FormRaw),
			},
			&cli.StringFlag{
				Name:  "naming",
				Usage: "key style of brief and full results: camel, words or upper",
				Value: string(naming.Camel),
			},
			&cli.BoolFlag{
				Name:  "count",
				Usage: "print the number of matching records only",
			},
		},
		Action: searchAction,
	}
}

func queryFromCommand(cmd *cli.Command) (query.Query, error) {
	var q query.Query
	for _, s := range cmd.StringSlice("filter") {
		f, err := parseFilter(s)
		if err != nil {
			return q, err
		}
		q.Filters = append(q.Filters, f)
	}
	for _, s := range cmd.StringSlice("feature") {
		f, err := parseFeature(s)
		if err != nil {
			return q, err
		}
		q.Features = append(q.Features, f)
	}
	if s := cmd.String("dates"); s != "" {
		dates, err := parseDates(s)
		if err != nil {
			return q, err
		}
		q.Dates = dates
	}
	return q, nil
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	q, err := queryFromCommand(cmd)
	if err != nil {
		return err
	}
	form, err := client.ParseResultForm(cmd.String("form"))
	if err != nil {
		return err
	}
	conv, err := naming.Parse(cmd.String("naming"))
	if err != nil {
		return err
	}

	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	params := func(coll string) client.SearchParams {
		return client.SearchParams{
			Collection:   coll,
			Query:        q,
			ResultFields: cmd.StringSlice("result-field"),
			MaxResults:   cmd.Int("max-results"),
		}
	}

	if cmd.Bool("count") {
		counts := make(map[string]int)
		for _, coll := range cmd.StringSlice("collection") {
			n, err := a.client.HitCount(ctx, params(coll))
			if err != nil {
				return err
			}
			counts[coll] = n
		}
		return writeOutput(stdout(cmd), a.output, counts)
	}

	log := logger.FromContext(ctx)
	session := client.NewSession(a.client, client.WithNaming(conv))
	var searchErr error
	for _, coll := range cmd.StringSlice("collection") {
		n, err := session.Search(ctx, params(coll))
		if err != nil {
			log.Error("search failed", zap.String("collection", coll), zap.Int("received", n), zap.Error(err))
			searchErr = err
			break
		}
		log.Debug("search URL", zap.String("url", session.LastURL()))
	}

	results, err := session.Results(ctx, form)
	if err != nil {
		return err
	}
	if records, ok := results.([]*rapi.Record); ok && records == nil {
		results = []*rapi.Record{}
	}
	if err := writeOutput(stdout(cmd), a.output, results); err != nil {
		return err
	}
	return searchErr
}

func newRecordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "Work with single records",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Fetch the complete metadata of a record",
				ArgsUsage: "<collection> <record-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "naming",
						Usage: "flatten the record with this key style: camel, words or upper",
					},
				},
				Action: getRecordAction,
			},
		},
	}
}

func getRecordAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected 2 arguments: collection and record id")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.client.GetRecord(ctx, cmd.Args().Get(0), rapi.ID(cmd.Args().Get(1)))
	if err != nil {
		return err
	}
	if s := cmd.String("naming"); s != "" {
		conv, err := naming.Parse(s)
		if err != nil {
			return err
		}
		return writeOutput(stdout(cmd), a.output, rec.Flatten(conv.Func()))
	}
	return writeOutput(stdout(cmd), a.output, rec)
}
