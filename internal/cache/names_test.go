package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycvk/go-essence/db"
	"github.com/ycvk/go-essence/db/sqlite3"
)

type lookupFunc func(ctx context.Context, groupID, userID int64) (string, error)

func (f lookupFunc) MemberName(ctx context.Context, groupID, userID int64) (string, error) {
	return f(ctx, groupID, userID)
}

func openStore(t *testing.T) db.Database {
	t.Helper()
	d := sqlite3.New(filepath.Join(t.TempDir(), "essence.db"))
	require.NoError(t, d.Open())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNamesFreshAndStale(t *testing.T) {
	store := openStore(t)
	calls := 0
	current := "小明"
	names := NewNames(store, lookupFunc(func(context.Context, int64, int64) (string, error) {
		calls++
		return current, nil
	}), 24*time.Hour, time.Second)
	clock := time.Unix(1_700_000_000, 0)
	names.now = func() time.Time { return clock }

	assert.Equal(t, "小明", names.Get(context.Background(), 1, 2))
	assert.Equal(t, 1, calls)

	current = "小红"
	clock = clock.Add(time.Hour)
	assert.Equal(t, "小明", names.Get(context.Background(), 1, 2), "fresh cache is trusted")
	assert.Equal(t, 1, calls)

	clock = clock.Add(24 * time.Hour)
	assert.Equal(t, "小红", names.Get(context.Background(), 1, 2))
	assert.Equal(t, 2, calls)

	m, err := store.LatestNickname(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "小红", m.Nickname)
}

func TestNamesFallback(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.InsertNickname(&db.NicknameMapping{Nickname: "旧名", GroupID: 1, UserID: 2, ObservedAt: 100}))
	names := NewNames(store, lookupFunc(func(ctx context.Context, _, _ int64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), time.Hour, 10*time.Millisecond)

	assert.Equal(t, "旧名", names.Get(context.Background(), 1, 2), "stale cache beats nothing")
	assert.Equal(t, Unknown, names.Get(context.Background(), 1, 3))
}

func TestNamesEmptyLookup(t *testing.T) {
	names := NewNames(openStore(t), lookupFunc(func(context.Context, int64, int64) (string, error) {
		return "", errors.New("member not found")
	}), time.Hour, time.Second)
	assert.Equal(t, Unknown, names.Get(context.Background(), 5, 6))
}
