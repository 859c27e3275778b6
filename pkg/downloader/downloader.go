// Package downloader transfers delivered order artefacts to local disk.
//
// A transfer is skipped when the local file already has the expected size,
// and a local file of any other size is removed and fetched again. Delivery
// URLs may be http(s) files, http(s) directory listings or s3:// objects.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ProgressFunc reports cumulative bytes downloaded and the expected total.
type ProgressFunc func(downloaded, total int64)

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Recorder receives transfer volume.
type Recorder interface {
	AddDownloadedBytes(n int64)
}

// S3API is the subset of the S3 client used for s3:// URLs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// StatusError is returned when the server answers a transfer with a status
// other than 200.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status code %d", e.URL, e.StatusCode)
}

// Result describes a finished File call.
type Result struct {
	Path    string
	Bytes   int64
	Skipped bool
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets the client used for http(s) URLs.
func WithHTTPClient(c Doer) Option {
	return func(d *Downloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder reports downloaded bytes to r.
func WithRecorder(r Recorder) Option {
	return func(d *Downloader) { d.recorder = r }
}

// WithS3Client sets the client used for s3:// URLs. Without it the default
// AWS configuration is loaded on first use.
func WithS3Client(c S3API) Option {
	return func(d *Downloader) { d.s3 = c }
}

// Downloader fetches files and folders.
type Downloader struct {
	client   Doer
	logger   *zap.Logger
	recorder Recorder
	s3       S3API
}

// New returns a Downloader using http.DefaultClient unless configured
// otherwise.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		client: http.DefaultClient,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// File downloads rawURL to dest. When expectedSize is positive and dest
// already has that size nothing is transferred; a dest of another size is
// removed first. A nil progress selects the non-streaming path, which reads
// the whole body before writing it.
func (d *Downloader) File(ctx context.Context, rawURL, dest string, expectedSize int64, progress ProgressFunc) (Result, error) {
	res := Result{Path: dest}

	skip, err := d.checkExisting(dest, expectedSize)
	if err != nil {
		return res, err
	}
	if skip {
		res.Skipped = true
		res.Bytes = expectedSize
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return res, fmt.Errorf("failed to create destination directory: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return res, fmt.Errorf("failed to parse download URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		res.Bytes, err = d.downloadHTTP(ctx, u.String(), dest, progress)
	case "s3":
		res.Bytes, err = d.downloadS3(ctx, u, dest, progress)
	default:
		return res, fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}
	if err != nil {
		return res, err
	}
	if d.recorder != nil {
		d.recorder.AddDownloadedBytes(res.Bytes)
	}
	d.logger.Info("file downloaded", zap.String("path", dest), zap.Int64("bytes", res.Bytes))
	return res, nil
}

// checkExisting reports whether dest can be kept as is.
func (d *Downloader) checkExisting(dest string, expectedSize int64) (bool, error) {
	fi, err := os.Stat(dest)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	if fi.IsDir() {
		return false, fmt.Errorf("destination %s is a directory", dest)
	}
	if expectedSize > 0 && fi.Size() == expectedSize {
		d.logger.Info("local file already complete; no download necessary", zap.String("path", dest))
		return true, nil
	}

	d.logger.Warn("file size mismatch; re-downloading",
		zap.String("path", dest),
		zap.Int64("local", fi.Size()),
		zap.Int64("expected", expectedSize))
	if err := os.Remove(dest); err != nil {
		return false, fmt.Errorf("failed to remove incomplete file: %w", err)
	}
	return false, nil
}

func (d *Downloader) get(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (d *Downloader) downloadHTTP(ctx context.Context, rawURL, dest string, progress ProgressFunc) (int64, error) {
	resp, err := d.get(ctx, http.MethodGet, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return writeBody(ctx, dest, resp.Body, resp.ContentLength, progress)
}

func (d *Downloader) downloadS3(ctx context.Context, u *url.URL, dest string, progress ProgressFunc) (int64, error) {
	if d.s3 == nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to load AWS config: %w", err)
		}
		d.s3 = s3.NewFromConfig(cfg)
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	result, err := d.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	var total int64
	if result.ContentLength != nil {
		total = *result.ContentLength
	}
	return writeBody(ctx, dest, result.Body, total, progress)
}

// writeBody streams src into dest with progress, or writes it in one go
// when progress is nil. dest is removed on failure.
func writeBody(ctx context.Context, dest string, src io.Reader, total int64, progress ProgressFunc) (n int64, err error) {
	if progress == nil {
		data, err := io.ReadAll(src)
		if err != nil {
			return 0, fmt.Errorf("failed to read response body: %w", err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			_ = os.Remove(dest)
			return 0, fmt.Errorf("failed to write %s: %w", dest, err)
		}
		return int64(len(data)), nil
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	progress(0, total)
	n, err = copyWithProgress(ctx, out, src, total, progress)
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return n, nil
}

func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	const defaultBufferSize = 32 * 1024
	buf := make([]byte, defaultBufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, writeErr := dst.Write(buf[:n])
			if writeErr != nil {
				return written, writeErr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
			written += int64(w)
			if progress != nil {
				progress(written, total)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}
