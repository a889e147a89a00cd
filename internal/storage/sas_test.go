package storage_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/straye-as/device-importer/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, lifetime time.Duration) *storage.SignatureGenerator {
	t.Helper()
	g, err := storage.NewSignatureGenerator(&storage.Account{Name: "devices", Key: testAccountKey}, lifetime)
	require.NoError(t, err)
	return g
}

func TestSignatureGenerator_Generate(t *testing.T) {
	g := newTestSigner(t, 60*time.Minute)
	before := time.Now().UTC()

	token, err := g.Generate()
	require.NoError(t, err)

	q, err := url.ParseQuery(token)
	require.NoError(t, err)

	assert.Equal(t, "https", q.Get("spr"), "signature must be HTTPS only")
	assert.Equal(t, "b", q.Get("ss"), "signature must be scoped to the blob service")
	assert.Equal(t, "co", q.Get("srt"), "signature must cover containers and objects")
	assert.Equal(t, "rwd", q.Get("sp"), "signature must grant read, write and delete")
	assert.NotEmpty(t, q.Get("sig"))
	assert.NotEmpty(t, q.Get("sv"))

	expiry, err := time.Parse(time.RFC3339, q.Get("se"))
	require.NoError(t, err)
	assert.True(t, expiry.After(before), "expiry must be in the future")
	assert.WithinDuration(t, before.Add(60*time.Minute), expiry, 2*time.Minute)
}

func TestSignatureGenerator_RecomputedPerCall(t *testing.T) {
	g := newTestSigner(t, 60*time.Minute)

	first, err := g.Generate()
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := g.Generate()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestSignatureGenerator_DefaultLifetime(t *testing.T) {
	g := newTestSigner(t, 0)

	assert.Equal(t, storage.DefaultSignatureLifetime, g.Lifetime())
}

func TestNewSignatureGenerator_InvalidKey(t *testing.T) {
	_, err := storage.NewSignatureGenerator(&storage.Account{Name: "devices", Key: "not base64!"}, time.Hour)

	assert.Error(t, err)
}
