package fetch

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_OK(t *testing.T) {
	f := NewHTTPFetcher(5*time.Second, false)
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	body := "firmware-bytes"
	resp := httpmock.NewStringResponse(200, body)
	resp.ContentLength = int64(len(body))
	httpmock.RegisterResponder("GET", "http://server/fw.bin",
		httpmock.ResponderFromResponse(resp))

	got, err := f.Fetch(context.Background(), "http://server/fw.bin")
	require.NoError(t, err)
	defer got.Close()

	require.Equal(t, 200, got.StatusCode)
	require.Equal(t, int64(len(body)), got.ContentLength)

	data, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(data))
}

func TestHTTPFetcher_SurfacesRedirectWithoutFollowing(t *testing.T) {
	f := NewHTTPFetcher(5*time.Second, false)
	httpmock.ActivateNonDefault(f.Client())
	defer httpmock.DeactivateAndReset()

	resp := httpmock.NewStringResponse(302, "")
	resp.Header.Set("Location", "http://mirror/fw.bin")
	httpmock.RegisterResponder("GET", "http://server/fw.bin",
		httpmock.ResponderFromResponse(resp))

	got, err := f.Fetch(context.Background(), "http://server/fw.bin")
	require.NoError(t, err)

	require.Equal(t, 302, got.StatusCode)
	require.Equal(t, "http://mirror/fw.bin", got.Location)
	require.Nil(t, got.Body)
}

// mapFetcher serves canned responses by URL, rebuilding the body per fetch.
type mapFetcher struct {
	responses map[string]Response
	fetches   []string
}

func (m *mapFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	m.fetches = append(m.fetches, url)
	r, ok := m.responses[url]
	if !ok {
		return &Response{StatusCode: 404}, nil
	}
	out := r
	out.Body = io.NopCloser(strings.NewReader("payload"))
	return &out, nil
}

func TestResolve_FollowsRedirectChain(t *testing.T) {
	f := &mapFetcher{responses: map[string]Response{
		"http://a/fw.bin": {StatusCode: 301, Location: "http://b/fw.bin"},
		"http://b/fw.bin": {StatusCode: 307, Location: "http://c/fw.bin"},
		"http://c/fw.bin": {StatusCode: 200, ContentLength: 7},
	}}

	resp, err := Resolve(context.Background(), f, "http://a/fw.bin")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, []string{"http://a/fw.bin", "http://b/fw.bin", "http://c/fw.bin"}, f.fetches)
}

func TestResolve_RedirectLoopFails(t *testing.T) {
	f := &mapFetcher{responses: map[string]Response{
		"http://a/fw.bin": {StatusCode: 302, Location: "http://b/fw.bin"},
		"http://b/fw.bin": {StatusCode: 302, Location: "http://a/fw.bin"},
	}}

	_, err := Resolve(context.Background(), f, "http://a/fw.bin")
	require.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestResolve_RedirectWithoutLocationReturnedAsIs(t *testing.T) {
	f := &mapFetcher{responses: map[string]Response{
		"http://a/fw.bin": {StatusCode: 301},
	}}

	resp, err := Resolve(context.Background(), f, "http://a/fw.bin")
	require.NoError(t, err)
	require.Equal(t, 301, resp.StatusCode)
}

func TestSplitS3URL(t *testing.T) {
	tests := []struct {
		url       string
		bucket    string
		key       string
		shouldErr bool
	}{
		{url: "s3://firmware/builds/fw-1.0.0.bin", bucket: "firmware", key: "builds/fw-1.0.0.bin"},
		{url: "s3://bucket", shouldErr: true},
		{url: "s3://", shouldErr: true},
		{url: "http://h/fw.bin", shouldErr: true},
	}

	for _, tt := range tests {
		bucket, key, err := splitS3URL(tt.url)
		if tt.shouldErr {
			require.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		require.Equal(t, tt.bucket, bucket)
		require.Equal(t, tt.key, key)
	}
}
