// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// setupMiniRedis creates a ledger backed by an in-process Redis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	mr := miniredis.RunT(t)
	l, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr(), Key: "camfetch:inflight"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return mr, l
}

func TestRedis_AddRemoveList(t *testing.T) {
	ctx := context.Background()
	mr, l := setupMiniRedis(t)

	require.NoError(t, l.Add(ctx, "CAM2"))
	require.NoError(t, l.Add(ctx, "CAM1"))
	require.NoError(t, l.Add(ctx, "CAM1"))

	names, err := l.List(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"CAM1", "CAM2"}, names); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, l.Remove(ctx, "CAM2"))
	require.NoError(t, l.Remove(ctx, "CAM2"))

	members, err := mr.Members("camfetch:inflight")
	require.NoError(t, err)
	require.Equal(t, []string{"CAM1"}, members)
}

func TestRedis_ConnectFailure(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(context.Background(), RedisConfig{Addr: addr, Key: "k"})
	require.Error(t, err)
}

func TestRedis_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	l, err := NewRedis(ctx, RedisConfig{Addr: mr.Addr(), Key: "k"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	mr.Close()

	require.Error(t, l.Add(ctx, "CAM1"))
}
