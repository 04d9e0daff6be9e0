package port

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nobletooth/slotcache/pkg/segment"
	"github.com/nobletooth/slotcache/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a segment reader over segments 0 ("hello world") and 1 (empty).
func newTestStore(t *testing.T) *segment.Reader {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, segment.FileName(0)), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, segment.FileName(1)), nil, 0o644))
	reader, err := segment.NewReader(dir, segment.NewHandleCacheFromFlags)
	require.NoError(t, err)
	return reader
}

func TestRedisRange(t *testing.T) {
	for _, testCase := range []struct {
		start, end, size int64
		offset           int64
		length           int
	}{
		{start: 0, end: 4, size: 11, offset: 0, length: 5},
		{start: 6, end: -1, size: 11, offset: 6, length: 5},
		{start: -5, end: -1, size: 11, offset: 6, length: 5},
		{start: 0, end: 100, size: 11, offset: 0, length: 11},
		{start: -100, end: 2, size: 11, offset: 0, length: 3},
		{start: 5, end: 2, size: 11, offset: 0, length: 0},
		{start: 0, end: -1, size: 0, offset: 0, length: 0},
		{start: 20, end: 30, size: 11, offset: 0, length: 0},
	} {
		offset, length := redisRange(testCase.start, testCase.end, testCase.size)
		assert.Equalf(t, testCase.offset, offset, "offset of %+v", testCase)
		assert.Equalf(t, testCase.length, length, "length of %+v", testCase)
	}
}

func TestNewRedisHandler(t *testing.T) {
	_, err := newRedisHandler(nil)
	assert.Error(t, err)
}

func TestRedisHandler(t *testing.T) {
	store := newTestStore(t)
	defer func() { assert.NoError(t, store.Close()) }()
	handler, err := newRedisHandler(store)
	require.NoError(t, err)

	for _, testCase := range []struct {
		name     string
		cmd      redisCommand
		expected redisOutput
	}{
		{name: "ping", cmd: redisCommand{command: "ping"}, expected: writeRedisString("PONG")},
		{name: "ping_message", cmd: redisCommand{command: "PING", args: []string{"hi"}},
			expected: writeRedisBulk([]byte("hi"))},
		{name: "quit", cmd: redisCommand{command: "QUIT"}, expected: closeRedisConnection(RedisOk)},
		{name: "get", cmd: redisCommand{command: "GET", args: []string{"0"}},
			expected: writeRedisBulk([]byte("hello world"))},
		{name: "get_empty", cmd: redisCommand{command: "GET", args: []string{"1"}},
			expected: writeRedisBulk([]byte{})},
		{name: "get_missing", cmd: redisCommand{command: "GET", args: []string{"7"}}, expected: writeRedisNil()},
		{name: "get_not_an_id", cmd: redisCommand{command: "GET", args: []string{"abc"}},
			expected: writeRedisError(errNotInteger)},
		{name: "get_wrong_args", cmd: redisCommand{command: "GET"}, expected: wrongArgs("GET")},
		{name: "strlen", cmd: redisCommand{command: "STRLEN", args: []string{"0"}}, expected: writeRedisInt(11)},
		{name: "strlen_missing", cmd: redisCommand{command: "STRLEN", args: []string{"7"}},
			expected: writeRedisInt(0)},
		{name: "getrange", cmd: redisCommand{command: "GETRANGE", args: []string{"0", "-5", "-1"}},
			expected: writeRedisBulk([]byte("world"))},
		{name: "getrange_empty", cmd: redisCommand{command: "GETRANGE", args: []string{"0", "5", "2"}},
			expected: writeRedisBulk(nil)},
		{name: "getrange_missing", cmd: redisCommand{command: "GETRANGE", args: []string{"7", "0", "2"}},
			expected: writeRedisBulk(nil)},
		{name: "getrange_bad_bounds", cmd: redisCommand{command: "GETRANGE", args: []string{"0", "x", "2"}},
			expected: writeRedisError(errNotInteger)},
		{name: "unknown", cmd: redisCommand{command: "SET", args: []string{"0", "x"}},
			expected: writeRedisError(errors.New("unknown command 'SET'"))},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, handler.handle(testCase.cmd))
		})
	}

	t.Run("keys_lists_open_segments", func(t *testing.T) {
		keys := func(pattern string) redisOutput {
			return handler.handle(redisCommand{command: "KEYS", args: []string{pattern}})
		}
		assert.Equal(t, writeRedisArray([]string{"0", "1"}), keys("*"))
		assert.Equal(t, writeRedisArray([]string{"1"}), keys("1*"))
		assert.Equal(t, writeRedisArray(nil), keys("9"))
		assert.Equal(t, wrongArgs("KEYS"), handler.handle(redisCommand{command: "KEYS"}))
	})
	t.Run("dbsize_counts_open_files", func(t *testing.T) {
		got := handler.handle(redisCommand{command: "DBSIZE"})
		require.NotNil(t, got.writeInt)
		assert.Equal(t, int64(store.OpenFiles()), *got.writeInt)
		assert.Equal(t, int64(2), *got.writeInt, "Segments 0 and 1 have been opened")
	})
}

// freeAddress returns a local address that was free at the time of the call.
func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestRunRedisServer(t *testing.T) {
	addr := freeAddress(t)
	utils.SetTestFlag(t, "address", addr)
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() { serverErr <- RunRedisServer(ctx, store) }()

	client := redis.NewClient(&redis.Options{Addr: addr, Protocol: 2, DisableIdentity: true})
	defer func() { _ = client.Close() }()
	require.Eventually(t, func() bool {
		return client.Ping(context.Background()).Err() == nil
	}, 5*time.Second, 20*time.Millisecond, "Server didn't come up")

	value, err := client.Get(ctx, "0").Result()
	require.NoError(t, err)
	assert.Equal(t, "hello world", value)

	_, err = client.Get(ctx, "42").Result()
	assert.ErrorIs(t, err, redis.Nil)

	value, err = client.GetRange(ctx, "0", 0, 4).Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	size, err := client.StrLen(ctx, "0").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	keys, err := client.Keys(ctx, "*").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, keys)

	openFiles, err := client.DBSize(ctx).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), openFiles)

	cancel()
	select {
	case err := <-serverErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server didn't stop after context cancellation")
	}
	assert.Equal(t, 0, store.OpenFiles(), "Stopping the server must close all segment files")
}

func TestRunRedisServer_EmptyAddress(t *testing.T) {
	utils.SetTestFlag(t, "address", "")
	assert.Error(t, RunRedisServer(context.Background(), newTestStore(t)))
}
