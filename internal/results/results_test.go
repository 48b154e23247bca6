package results

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	jobID := uuid.New()
	ref, err := store.Put(ctx, &Output{
		JobID:        jobID,
		Markdown:     "# Converted",
		Pages:        2,
		ProcessingMS: 800,
	})
	require.NoError(t, err)
	assert.Equal(t, "memory://"+jobID.String(), ref)

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, "# Converted", got.Markdown)
	assert.Equal(t, 2, got.Pages)
	assert.False(t, got.StoredAt.IsZero())
}

func TestMemoryStore_GetUnknownRef(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "memory://"+uuid.NewString())
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, &Output{JobID: uuid.New(), Markdown: "x"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, ref))
	_, err = store.Get(ctx, ref)
	assert.ErrorIs(t, err, ErrResultNotFound)

	// deleting again is a no-op
	assert.NoError(t, store.Delete(ctx, ref))
}

func TestS3Store_KeyFromRef(t *testing.T) {
	store := &S3Store{bucket: "conversions"}

	key, err := store.keyFromRef("s3://conversions/2026/01/02/abc.json")
	require.NoError(t, err)
	assert.Equal(t, "2026/01/02/abc.json", key)

	_, err = store.keyFromRef("s3://other-bucket/abc.json")
	assert.Error(t, err)

	_, err = store.keyFromRef("memory://abc")
	assert.Error(t, err)
}
