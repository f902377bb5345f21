package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	pkgerrors "github.com/deviceops/fwagent/pkg/errors"
)

// S3Fetcher retrieves s3://bucket/key URLs, for fleets that host manifests
// and firmware images in a bucket instead of behind an HTTP server.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher creates an S3Fetcher using the default credential chain.
func NewS3Fetcher(ctx context.Context, region string) (*S3Fetcher, error) {
	slog.Info("s3_fetcher_init", "region", region)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, pkgerrors.Wrap(err, "failed to load AWS config")
	}

	return &S3Fetcher{client: s3.NewFromConfig(cfg)}, nil
}

func splitS3URL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 url: %s", url)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 url: %s", url)
	}
	return bucket, key, nil
}

// Fetch streams an object. S3 has no redirects, so the response is always
// terminal: 200 with the object's content length, or an error.
func (f *S3Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	bucket, key, err := splitS3URL(url)
	if err != nil {
		return nil, err
	}

	slog.Info("s3_fetch_start", "bucket", bucket, "key", key)

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("s3_get_object_failed", "bucket", bucket, "key", key, "error", err)
		return nil, pkgerrors.Wrap(err, "failed to get object from S3")
	}

	length := int64(-1)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}

	return &Response{
		StatusCode:    200,
		ContentLength: length,
		Body:          out.Body,
	}, nil
}

// Router dispatches by URL scheme: s3:// to the S3 fetcher when configured,
// everything else to HTTP.
type Router struct {
	http *HTTPFetcher
	s3   *S3Fetcher
}

// NewRouter creates a Router. s3 may be nil when no bucket access is
// configured; s3:// URLs then fail with an explicit error.
func NewRouter(http *HTTPFetcher, s3 *S3Fetcher) *Router {
	return &Router{http: http, s3: s3}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, url string) (*Response, error) {
	if strings.HasPrefix(url, "s3://") {
		if r.s3 == nil {
			return nil, fmt.Errorf("s3 url %s but no s3 fetcher configured", url)
		}
		return r.s3.Fetch(ctx, url)
	}
	return r.http.Fetch(ctx, url)
}
