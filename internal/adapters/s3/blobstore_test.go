package s3_test

import (
	"context"
	"testing"

	"github.com/robertarktes/merchpit/internal/adapters/s3"
	"github.com/robertarktes/merchpit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLMapping(t *testing.T) {
	store, err := s3.NewBlobStore(context.Background(), config.Storage{
		Endpoint:        "https://acct.r2.cloudflarestorage.com",
		Region:          "auto",
		Bucket:          "merch",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		PublicURL:       "https://cdn.merchpit.app/",
	})
	require.NoError(t, err)

	url := store.URL("/products/p1/a.png")
	assert.Equal(t, "https://cdn.merchpit.app/products/p1/a.png", url)

	key, ok := store.KeyFromURL(url)
	assert.True(t, ok)
	assert.Equal(t, "products/p1/a.png", key)

	_, ok = store.KeyFromURL("https://elsewhere.example/products/p1/a.png")
	assert.False(t, ok)
}

func TestURLWithoutPublicBase(t *testing.T) {
	store, err := s3.NewBlobStore(context.Background(), config.Storage{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		Bucket:          "merch",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/merch/events/e1/b.jpg", store.URL("events/e1/b.jpg"))
}

func TestRequiresCredentials(t *testing.T) {
	_, err := s3.NewBlobStore(context.Background(), config.Storage{Bucket: "merch"})
	assert.Error(t, err)
}
