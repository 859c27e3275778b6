package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Folder mirrors the directory listing at rawURL into destDir. The first
// anchor of a listing links to the parent directory and is ignored. Entries
// answered with "Entry-Type: Directory" on HEAD are crawled recursively;
// everything else is fetched with File using the HEAD Content-Length as the
// expected size. It returns the local paths of all files.
func (d *Downloader) Folder(ctx context.Context, rawURL, destDir string, progress ProgressFunc) ([]string, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse folder URL: %w", err)
	}
	dir := *base
	if !strings.HasSuffix(dir.Path, "/") {
		dir.Path += "/"
		dir.RawPath = ""
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}
	d.logger.Info("downloading folder", zap.String("url", rawURL), zap.String("dest", destDir))

	resp, err := d.get(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	links, err := ListingLinks(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", rawURL, err)
	}

	var paths []string
	for i, href := range links {
		if i == 0 {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			d.logger.Warn("skipping unparsable listing entry", zap.String("href", href), zap.Error(err))
			continue
		}
		entry := dir.ResolveReference(ref)
		entry.Path = strings.TrimRight(entry.Path, "/")
		name := path.Base(entry.Path)

		head, err := d.head(ctx, entry.String())
		if err != nil {
			return paths, err
		}

		if head.Header.Get("Entry-Type") == "Directory" {
			sub := filepath.Join(destDir, name)
			if strings.Contains(filepath.Base(destDir), name) {
				sub = destDir
			}
			got, err := d.Folder(ctx, entry.String(), sub, progress)
			paths = append(paths, got...)
			if err != nil {
				return paths, err
			}
			continue
		}

		res, err := d.File(ctx, entry.String(), filepath.Join(destDir, name), head.ContentLength, progress)
		if err != nil {
			return paths, err
		}
		paths = append(paths, res.Path)
	}
	return paths, nil
}

func (d *Downloader) head(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", rawURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// ListingLinks returns the href of every anchor in an HTML document, in
// document order.
func ListingLinks(r io.Reader) ([]string, error) {
	z := html.NewTokenizer(r)
	var links []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					links = append(links, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

// DeliveryURL extracts the download URL from the HTML fragment the service
// puts in an order item destination, such as
// `<a href="https://host/x.zip?token=1">https://host/x.zip</a></br>`.
// The anchor's href wins over its text; entities are unescaped and any
// query or fragment is dropped.
func DeliveryURL(fragment string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse destination: %w", err)
	}

	var href, text string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if href != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					href = a.Val
				}
			}
		}
		if n.Type == html.TextNode && text == "" {
			text = strings.TrimSpace(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	u := href
	if u == "" {
		u = text
	}
	u = strings.TrimSpace(html.UnescapeString(u))
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if u == "" {
		return "", fmt.Errorf("no URL in destination %q", fragment)
	}
	return u, nil
}
