package client

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/pkg/downloader"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// DownloadOptions controls the polling loop of Download.
type DownloadOptions struct {
	// Wait is the pause before every status check. Zero polls back to back.
	Wait time.Duration
	// MaxAttempts bounds the number of status checks. Zero means poll until
	// every item is complete.
	MaxAttempts int
	// Progress receives transfer progress. Nil selects the non-streaming
	// transfer.
	Progress downloader.ProgressFunc
}

// Download polls the orders of items until every item has either failed or
// been downloaded into dest, MaxAttempts is reached, or an error stops it.
// Items are first reduced with RemoveDuplicateOrders.
//
// The completed items are returned on every exit path. A failed item has
// Downloaded false; a downloaded item lists its files in DownloadPaths. An
// item whose transfer fails stays pending and is tried again on the next
// check. Files already on disk with the size declared in the manifest are
// not transferred again.
func (c *Client) Download(ctx context.Context, items []*rapi.OrderItem, dest string, opts DownloadOptions) ([]*rapi.OrderItem, error) {
	log := c.logger.Named("download")

	pending := RemoveDuplicateOrders(items)
	if len(pending) == 0 {
		log.Info("no images to download")
		return nil, nil
	}

	var complete []*rapi.OrderItem
	done := make(map[rapi.ID]bool)
	lastStatus := make(map[rapi.ID]rapi.OrderStatus)

	for attempt := 1; len(complete) < len(pending); attempt++ {
		if opts.MaxAttempts > 0 && attempt > opts.MaxAttempts {
			log.Info("maximum number of attempts reached",
				zap.Int("attempts", opts.MaxAttempts),
				zap.Int("complete", len(complete)),
				zap.Int("items", len(pending)))
			return complete, nil
		}
		if err := sleepCtx(ctx, opts.Wait); err != nil {
			return complete, err
		}

		orders, err := c.GetOrdersFor(ctx, pending)
		if err != nil {
			return complete, err
		}
		if len(orders) == 0 {
			log.Warn("no orders could be found")
			return complete, nil
		}

		before := len(complete)
		for _, it := range pending {
			if done[it.ItemID] {
				continue
			}
			cur := findOrderItem(it.ItemID, orders)
			if cur == nil {
				continue
			}
			if cur.DateRapiOrdered == "" {
				cur.DateRapiOrdered = it.DateRapiOrdered
			}

			ilog := log.With(
				zap.String("item", string(cur.ItemID)),
				zap.String("order", string(cur.OrderID)),
				zap.String("record", string(cur.RecordID)),
				zap.String("collection", cur.CollectionID))
			if prev, ok := lastStatus[it.ItemID]; !ok || prev != cur.Status {
				ilog.Info("order item status", zap.String("status", string(cur.Status)), zap.String("message", cur.StatusMessage))
				lastStatus[it.ItemID] = cur.Status
			}

			switch {
			case cur.Status.IsFailed():
				ilog.Warn("order item will not be downloaded",
					zap.String("status", string(cur.Status)),
					zap.String("reason", cur.StatusMessage))
				cur.Downloaded = false
			case cur.Status == rapi.StatusAvailable:
				paths, err := c.deliver(ctx, ilog, cur, dest, opts.Progress)
				if err != nil {
					if ctx.Err() != nil {
						return complete, ctx.Err()
					}
					ilog.Warn("download failed; will retry on next check", zap.Error(err))
					continue
				}
				cur.Downloaded = true
				cur.DownloadPaths = paths
			default:
				continue
			}

			done[it.ItemID] = true
			complete = append(complete, cur)
			c.metrics.IncOrderItems(string(cur.Status))
		}

		if len(complete) == before {
			log.Info("no new items are ready for download yet",
				zap.Int("attempt", attempt),
				zap.Int("complete", len(complete)),
				zap.Int("items", len(pending)))
		}
	}
	return complete, nil
}

// findOrderItem returns the polled item with id itemID, or the item derived
// from it.
func findOrderItem(itemID rapi.ID, orders []*rapi.OrderItem) *rapi.OrderItem {
	for _, o := range orders {
		if o.ParentItemID() == itemID || o.ItemID == itemID {
			return o
		}
	}
	return nil
}

// deliver downloads every destination of an available item. Zip archives
// are single files; any other delivery URL is a folder listing.
func (c *Client) deliver(ctx context.Context, log *zap.Logger, item *rapi.OrderItem, dest string, progress downloader.ProgressFunc) ([]rapi.DownloadPath, error) {
	var paths []rapi.DownloadPath
	for _, d := range item.Destinations {
		if strings.TrimSpace(d.StringValue) == "" {
			continue
		}
		deliveryURL, err := downloader.DeliveryURL(d.StringValue)
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(deliveryURL)
		if err != nil {
			return nil, fmt.Errorf("parse delivery URL: %w", err)
		}
		name := path.Base(u.Path)
		local := filepath.Join(dest, name)

		log.Info("downloading order item", zap.String("file", name), zap.String("url", deliveryURL))
		if strings.HasSuffix(strings.ToLower(name), ".zip") {
			size, _ := item.Manifest.SizeOf(name)
			if _, err := c.downloader.File(ctx, deliveryURL, local, size, progress); err != nil {
				return nil, err
			}
		} else {
			if _, err := c.downloader.Folder(ctx, deliveryURL, local, progress); err != nil {
				return nil, err
			}
		}

		abs, err := filepath.Abs(local)
		if err != nil {
			abs = local
		}
		paths = append(paths, rapi.DownloadPath{URL: deliveryURL, LocalDestination: abs})
	}
	return paths, nil
}
