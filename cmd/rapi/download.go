package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/go-rapi-client/pkg/client"
	"github.com/robert-malhotra/go-rapi-client/pkg/downloader"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func newDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Wait for ordered items and download them",
		ArgsUsage: "<items.json|->",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "download directory",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "pause between status checks",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "maximum number of status checks (0 for no limit)",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "report transfer progress on stderr",
			},
		},
		Action: downloadAction,
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected 1 argument: order items file")
	}
	a, ctx, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var items []*rapi.OrderItem
	if err := readJSONFile(cmd, cmd.Args().First(), &items); err != nil {
		return err
	}
	if err := os.MkdirAll(a.cfg.Download.Dir, 0o755); err != nil {
		return err
	}

	opts := client.DownloadOptions{
		Wait:        a.cfg.Download.Wait,
		MaxAttempts: a.cfg.Download.MaxAttempts,
	}
	if cmd.Bool("progress") {
		opts.Progress = progressPrinter(stderr(cmd))
	}

	complete, err := a.client.Download(ctx, items, a.cfg.Download.Dir, opts)
	if complete == nil {
		complete = []*rapi.OrderItem{}
	}
	if werr := writeOutput(stdout(cmd), a.output, complete); werr != nil {
		return werr
	}
	return err
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

// progressPrinter reports every tenth of a transfer, or every 10 MiB when
// the size is unknown.
func progressPrinter(w io.Writer) downloader.ProgressFunc {
	const step = 10 << 20
	var last int64
	return func(downloaded, total int64) {
		if downloaded < last {
			last = 0
		}
		if total > 0 {
			if downloaded == total || (downloaded-last)*10 >= total {
				fmt.Fprintf(w, "\r%5.1f%% of %d bytes", float64(downloaded)*100/float64(total), total)
				last = downloaded
			}
			if downloaded == total {
				fmt.Fprintln(w)
			}
			return
		}
		if downloaded-last >= step {
			fmt.Fprintf(w, "\r%d bytes", downloaded)
			last = downloaded
		}
	}
}
