package memory_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/memory"
)

// storeContract runs the behaviors every backend must share.
func storeContract(t *testing.T, s memory.Store) {
	ctx := context.Background()
	agent := "agent-" + t.Name()

	t.Run("append is idempotent for comment records", func(t *testing.T) {
		r := memory.NewRecord(agent, memory.KindComment, "Alice", "hi", "c1")
		require.NoError(t, s.Append(ctx, r))
		require.NoError(t, s.Append(ctx, memory.NewRecord(agent, memory.KindComment, "Alice", "hi", "c1")))

		recent, err := s.Recent(ctx, agent, 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, r.ID, recent[0].ID)
	})

	t.Run("recent is oldest first and bounded", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Append(ctx, memory.NewRecord(agent, memory.KindThought, "", fmt.Sprintf("t%d", i), "")))
		}
		recent, err := s.Recent(ctx, agent, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "t1", recent[0].Text)
		assert.Equal(t, "t2", recent[1].Text)
	})

	t.Run("authors match case-insensitively", func(t *testing.T) {
		ok, err := s.HasAuthor(ctx, agent, "alice")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.HasAuthor(ctx, agent, "bob")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.HasAuthor(ctx, "other-agent", "alice")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore(t *testing.T) {
	s := memory.NewMemoryStore(0)
	defer s.Close()
	storeContract(t, s)
}

func TestMemoryStoreTrims(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemoryStore(2)
	require.NoError(t, s.Append(ctx, memory.NewRecord("a", memory.KindComment, "old", "1", "c1")))
	require.NoError(t, s.Append(ctx, memory.NewRecord("a", memory.KindComment, "new", "2", "c2")))
	require.NoError(t, s.Append(ctx, memory.NewRecord("a", memory.KindComment, "new", "3", "c3")))

	assert.Equal(t, 2, s.Len())
	ok, _ := s.HasAuthor(ctx, "a", "old")
	assert.False(t, ok, "trimmed author should be forgotten")

	// A trimmed id may be appended again.
	require.NoError(t, s.Append(ctx, memory.NewRecord("a", memory.KindComment, "old", "1", "c1")))
	recent, _ := s.Recent(ctx, "a", 0)
	require.Len(t, recent, 2)
	assert.Equal(t, "c1", recent[1].CommentID)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	s, err := memory.NewFileStore(path, 0)
	require.NoError(t, err)
	storeContract(t, s)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := memory.NewFileStore(path, 0)
	require.NoError(t, err)
	ok, err := reopened.HasAuthor(context.Background(), "agent-TestFileStore", "ALICE")
	require.NoError(t, err)
	assert.True(t, ok)

	recent, err := reopened.Recent(context.Background(), "agent-TestFileStore", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
}

func TestFileStoreRequiresPath(t *testing.T) {
	_, err := memory.NewFileStore("", 0)
	assert.ErrorIs(t, err, memory.ErrNoPath)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("BORP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BORP_TEST_REDIS_ADDR not set")
	}
	s, err := memory.NewRedisStore(memory.RedisConfig{Addr: addr, Prefix: fmt.Sprintf("borp-test-%d", time.Now().UnixNano())})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer s.Close()
	storeContract(t, s)
}

func TestRedisStoreAppendAfterFailureAndBoundedIDs(t *testing.T) {
	addr := os.Getenv("BORP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BORP_TEST_REDIS_ADDR not set")
	}
	s, err := memory.NewRedisStore(memory.RedisConfig{Addr: addr, MaxRecords: 2, Prefix: fmt.Sprintf("borp-test-%d", time.Now().UnixNano())})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer s.Close()

	first := memory.NewRecord("a1", memory.KindComment, "sam", "one", "c1")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.Append(cancelled, first))

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, first))
	recent, err := s.Recent(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 1, "a failed append must not mark the id as seen")

	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, memory.NewRecord("a1", memory.KindComment, "sam", "two", "c2")))
	require.NoError(t, s.Append(ctx, memory.NewRecord("a1", memory.KindComment, "sam", "three", "c3")))

	// c1 has left the window, so it is accepted again.
	require.NoError(t, s.Append(ctx, first))
	recent, err = s.Recent(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Text)
	assert.Equal(t, "one", recent[1].Text)
}

func TestOpen(t *testing.T) {
	s, err := memory.Open(memory.Options{})
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryStore{}, s)

	s, err = memory.Open(memory.Options{Backend: "file", Path: filepath.Join(t.TempDir(), "m.json")})
	require.NoError(t, err)
	assert.IsType(t, &memory.FileStore{}, s)

	_, err = memory.Open(memory.Options{Backend: "sqlite"})
	assert.ErrorIs(t, err, memory.ErrUnknownBackend)
}

func TestFirstInteraction(t *testing.T) {
	r := memory.FirstInteraction("a", "sam", "c9")
	assert.Equal(t, memory.KindFirstInteraction, r.Kind)
	assert.Equal(t, "My name is sam", r.Text)
	assert.NotEqual(t, memory.NewRecord("a", memory.KindComment, "sam", "x", "c9").ID, r.ID)
}
