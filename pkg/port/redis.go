package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/nobletooth/slotcache/pkg/scan"
	"github.com/nobletooth/slotcache/pkg/segment"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

// SegmentStore is the storage served over the Redis protocol. Keys are segment ids.
type SegmentStore interface {
	ReadAll(id int) ([]byte, error)
	ReadAt(id int, offset int64, n int) ([]byte, error)
	Size(id int) (int64, error)
	OpenIds() []int
	OpenFiles() int
	Close() error
}

var _ SegmentStore = (*segment.Reader)(nil)

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int64   // Writes an integer value if set.
	writeBulk       []byte   // Writes a bulk string if non-nil.
	writeArray      []string // Writes an array of bulk strings if non-nil.
	writeString     string   // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int64) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisBulk(b []byte) redisOutput {
	if b == nil {
		b = []byte{}
	}
	return redisOutput{writeBulk: b}
}

func writeRedisArray(items []string) redisOutput {
	if items == nil {
		items = []string{}
	}
	return redisOutput{writeArray: items}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

// writeTo writes the output to a redcon connection.
func (o redisOutput) writeTo(conn redcon.Conn) {
	switch {
	case o.err != nil:
		conn.WriteError(*o.err)
	case o.writeNil:
		conn.WriteNull()
	case o.writeInt != nil:
		conn.WriteInt64(*o.writeInt)
	case o.writeBulk != nil:
		conn.WriteBulk(o.writeBulk)
	case o.writeArray != nil:
		conn.WriteArray(len(o.writeArray))
		for _, item := range o.writeArray {
			conn.WriteBulkString(item)
		}
	default:
		conn.WriteString(o.writeString)
	}
}

var errNotInteger = errors.New("value is not an integer or out of range")

// wrongArgs reports a wrong number of arguments for `command`, the same way Redis does.
func wrongArgs(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

// parseInts parses all `args` as integers.
func parseInts(args ...string) ([]int64, error) {
	ints := make([]int64, len(args))
	for i, arg := range args {
		parsed, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, errNotInteger
		}
		ints[i] = parsed
	}
	return ints, nil
}

// segmentId parses a segment id key. Ids out of int's range are rejected.
func segmentId(key string) (int, error) {
	id, err := strconv.Atoi(key)
	if err != nil {
		return 0, errNotInteger
	}
	return id, nil
}

// redisRange converts a Redis GETRANGE [start, end] pair, possibly negative, into an offset and length within a
// value of `size` bytes.
func redisRange(start, end, size int64) (offset int64, length int) {
	if start < 0 {
		start += size
	}
	if end < 0 {
		end += size
	}
	start, end = max(start, 0), max(end, 0)
	if end >= size {
		end = size - 1
	}
	if size == 0 || start > end {
		return 0, 0
	}
	return start, int(end - start + 1)
}

type redisHandler struct {
	store SegmentStore
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(store SegmentStore) (*redisHandler, error) {
	if store == nil {
		return nil, errors.New("expected a non-nil segment store")
	}
	return &redisHandler{store: store}, nil
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	command := strings.ToUpper(cmd.command)
	switch command {
	case "PING":
		if len(cmd.args) == 1 {
			return writeRedisBulk([]byte(cmd.args[0]))
		}
		return writeRedisString("PONG")
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "GET":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		id, err := segmentId(cmd.args[0])
		if err != nil {
			return writeRedisError(err)
		}
		if value, err := rh.store.ReadAll(id); errors.Is(err, segment.ErrSegmentNotFound) {
			return writeRedisNil()
		} else if err != nil {
			return writeRedisError(err)
		} else {
			return writeRedisBulk(value)
		}
	case "STRLEN":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		id, err := segmentId(cmd.args[0])
		if err != nil {
			return writeRedisError(err)
		}
		if size, err := rh.store.Size(id); errors.Is(err, segment.ErrSegmentNotFound) {
			return writeRedisInt(0)
		} else if err != nil {
			return writeRedisError(err)
		} else {
			return writeRedisInt(size)
		}
	case "GETRANGE":
		if len(cmd.args) != 3 {
			return wrongArgs(command)
		}
		id, err := segmentId(cmd.args[0])
		if err != nil {
			return writeRedisError(err)
		}
		bounds, err := parseInts(cmd.args[1], cmd.args[2])
		if err != nil {
			return writeRedisError(err)
		}
		size, err := rh.store.Size(id)
		if errors.Is(err, segment.ErrSegmentNotFound) {
			return writeRedisBulk(nil)
		} else if err != nil {
			return writeRedisError(err)
		}
		offset, length := redisRange(bounds[0], bounds[1], size)
		if length == 0 {
			return writeRedisBulk(nil)
		}
		value, err := rh.store.ReadAt(id, offset, length)
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisBulk(value)
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArgs(command)
		}
		openIds := func(yield func(string) bool) {
			for _, id := range rh.store.OpenIds() {
				if !yield(strconv.Itoa(id)) {
					return
				}
			}
		}
		matches, err := scan.MatchGlob(cmd.args[0], openIds)
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisArray(slices.Collect(matches))
	case "DBSIZE":
		if len(cmd.args) != 0 {
			return wrongArgs(command)
		}
		return writeRedisInt(int64(rh.store.OpenFiles()))
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// RunRedisServer starts a Redis protocol server serving reads from the given segment store. The store is closed
// once `ctx` is cancelled.
func RunRedisServer(ctx context.Context, store SegmentStore) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(store)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := redisHandler.handle(command)
			output.writeTo(conn)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted connection.", "remote", conn.RemoteAddr())
			return true // Accept all connections.
		},
		/*closed*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		serverErr := redisServer.Close()
		storeErr := store.Close()
		if exitErr := errors.Join(serverErr, storeErr); exitErr != nil {
			return fmt.Errorf("failed to close slotcache: %w", exitErr)
		}
	case err, failed := <-serverErrSignal:
		if !failed {
			return store.Close()
		}
		return errors.Join(fmt.Errorf("redis server stopped unexpectedly: %w", err), store.Close())
	}

	return nil // Exited with no errors.
}
