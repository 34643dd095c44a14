//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan []byte, 1)
	require.NoError(t, tc.Client.Subscribe(ctx, "streamsmon.test", func(_ context.Context, data []byte) {
		got <- data
	}))
	require.NoError(t, tc.Client.Publish(ctx, "streamsmon.test", []byte(`{"ok":true}`)))

	select {
	case data := <-got:
		assert.JSONEq(t, `{"ok":true}`, string(data))
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestIntegration_KVStore(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("app_config"))
	ctx := context.Background()

	bucket, err := tc.Client.KeyValueBucket(ctx, "app_config", false)
	require.NoError(t, err)
	kv := tc.Client.NewKVStore(bucket)

	_, err = kv.Get(ctx, "missing")
	assert.True(t, IsKVNotFoundError(err))

	rev, err := kv.Put(ctx, "monitoring", []byte(`{"user":"admin"}`))
	require.NoError(t, err)
	assert.NotZero(t, rev)

	entry, err := kv.Get(ctx, "monitoring")
	require.NoError(t, err)
	assert.Equal(t, rev, entry.Revision)
	assert.JSONEq(t, `{"user":"admin"}`, string(entry.Value))

	require.NoError(t, kv.Delete(ctx, "monitoring"))
	_, err = kv.Get(ctx, "monitoring")
	assert.True(t, IsKVNotFoundError(err))
}

func TestIntegration_CreateBucketOnDemand(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	_, err := tc.Client.KeyValueBucket(ctx, "absent", false)
	assert.Error(t, err)

	kv, err := tc.Client.KeyValueBucket(ctx, "absent", true)
	require.NoError(t, err)
	assert.Equal(t, "absent", kv.Bucket())
}
