package s3client

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UploadDownloadKeysRemove(t *testing.T) {
	ctx := context.Background()
	base := TestClient(t, "artifacts")
	c := base.WithPrefix("run-42")

	_, err := c.Upload(ctx, "portfolio/master_uk_desktop/empty.png", []byte("png-1"), "image/png")
	require.NoError(t, err)
	_, err = c.Upload(ctx, "portfolio/master_uk_desktop/with-item.png", []byte("png-2"), "image/png")
	require.NoError(t, err)
	_, err = base.Upload(ctx, "other/x.png", []byte("x"), "image/png")
	require.NoError(t, err)

	got, err := c.Download(ctx, "portfolio/master_uk_desktop/empty.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-1"), got)

	keys, err := c.Keys(ctx, "portfolio/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"portfolio/master_uk_desktop/empty.png",
		"portfolio/master_uk_desktop/with-item.png",
	}, keys)

	require.NoError(t, c.Remove(ctx, "portfolio/master_uk_desktop/empty.png"))
	_, err = c.Download(ctx, "portfolio/master_uk_desktop/empty.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestClient_UploadReturnsServableURL(t *testing.T) {
	ctx := context.Background()
	c := TestClient(t, "artifacts").WithPrefix("/run-7/")

	url, err := c.Upload(ctx, "landing/guest_uk_mobile/home.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, c.URL("landing/guest_uk_mobile/home.png"), url)
	assert.Contains(t, url, "/artifacts/run-7/landing/guest_uk_mobile/home.png")

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("img"), body)
	assert.Equal(t, "artifacts", c.BucketName())
}

func TestClient_CheckBucket(t *testing.T) {
	ctx := context.Background()
	c := TestClient(t, "artifacts")
	require.NoError(t, c.CheckBucket(ctx))

	missing := NewFromS3Client(c.api, "no-such-bucket", "")
	assert.Error(t, missing.CheckBucket(ctx))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.Error(t, err)
}
