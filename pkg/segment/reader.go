// Segments are immutable files named `<id>.seg` inside a directory. Opening a file on every read is expensive and
// keeping every file open exhausts file descriptors, so the Reader keeps a bounded number of handles open in a slot
// cache and closes the least recently used one when it needs room.

package segment

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/nobletooth/slotcache/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const fileExtension = ".seg"

var (
	ErrSegmentNotFound = errors.New("segment not found")
	ErrInvalidRange    = errors.New("invalid segment range")

	handleCacheCapacity = flag.Int("segment_cache_capacity", 64,
		"The maximum number of segment files kept open at the same time.")
	handleCacheShardCount = flag.Int("segment_cache_shard_count", 1,
		"The number of shards of the segment handle cache; the capacity applies to each shard.")
	handleCacheMaxId = flag.Int("segment_cache_max_id", 0,
		"If positive, segment ids must be below this value and are indexed without hashing.")
	handleCacheTrackChurn = flag.Bool("segment_cache_track_churn", false,
		"Count segment files that get reopened after being closed by the handle cache.")

	segmentReadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "segment_read_bytes_total",
		Help: "Total number of bytes read from segment files.",
	})
	segmentOpenFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "segment_open_files",
		Help: "Number of segment files currently held open by the handle cache.",
	})
)

// FileName returns the file name of segment `id`.
func FileName(id int) string {
	return strconv.Itoa(id) + fileExtension
}

// HandleCacheFactory builds the cache holding open segment files.
type HandleCacheFactory func(
	open cache.Constructor[*os.File], release cache.Releaser[*os.File]) (cache.Layer[*os.File], error)

// NewHandleCacheFromFlags builds a Locked or Sharded handle cache according to the segment_cache_* flags.
func NewHandleCacheFromFlags(
	open cache.Constructor[*os.File], release cache.Releaser[*os.File]) (cache.Layer[*os.File], error) {
	opts := []cache.Option{cache.WithName("segment_handles")}
	if *handleCacheMaxId > 0 {
		opts = append(opts, cache.WithMaxKey(*handleCacheMaxId))
	}
	if *handleCacheTrackChurn {
		opts = append(opts, cache.WithChurnTracking(uint(max(*handleCacheCapacity, 1)*64), 0.01))
	}
	newShard := func() (*cache.Locked[*os.File], error) {
		return cache.NewLocked(*handleCacheCapacity, open, release, opts...)
	}
	if *handleCacheShardCount > 1 { // Sharded cache.
		sharded, err := cache.NewSharded(newShard, *handleCacheShardCount)
		if err != nil {
			return nil, err
		}
		return sharded, nil
	}
	locked, err := newShard() // Single shard cache.
	if err != nil {
		return nil, err
	}
	return locked, nil
}

// Reader reads byte ranges out of segment files. It is safe for concurrent use.
type Reader struct {
	dir     string
	handles cache.Layer[*os.File]
}

// NewReader creates a reader over the segments of `dir`, using `newCache` to hold open files.
func NewReader(dir string, newCache HandleCacheFactory) (*Reader, error) {
	if dir == "" {
		return nil, errors.New("expected a non-empty segment directory")
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to stat segment directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("segment path '%s' is not a directory", dir)
	}

	reader := &Reader{dir: dir}
	handles, err := newCache(reader.openSegment, closeSegment)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment handle cache: %w", err)
	}
	reader.handles = handles
	return reader, nil
}

// openSegment is the constructor of the handle cache.
func (r *Reader) openSegment(id int) (*os.File, error) {
	file, err := os.Open(filepath.Join(r.dir, FileName(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %d", ErrSegmentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %d: %w", id, err)
	}
	segmentOpenFiles.Inc()
	slog.Debug("Opened segment file.", "id", id, "path", file.Name())
	return file, nil
}

// closeSegment is the releaser of the handle cache.
func closeSegment(file *os.File) error {
	segmentOpenFiles.Dec()
	slog.Debug("Closing segment file.", "path", file.Name())
	return file.Close()
}

// ReadAt reads up to `n` bytes of segment `id` starting at `offset`. Fewer bytes are returned at the end of the file.
func (r *Reader) ReadAt(id int, offset int64, n int) ([]byte, error) {
	if offset < 0 || n < 0 {
		return nil, fmt.Errorf("%w: offset %d, length %d", ErrInvalidRange, offset, n)
	}
	var data []byte
	err := r.handles.Use(id, func(file *os.File) error {
		buf := make([]byte, n)
		read, err := file.ReadAt(buf, offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read segment %d: %w", id, err)
		}
		data = buf[:read]
		return nil
	})
	segmentReadBytes.Add(float64(len(data)))
	return data, err
}

// Size returns the size of segment `id` in bytes.
func (r *Reader) Size(id int) (int64, error) {
	var size int64
	err := r.handles.Use(id, func(file *os.File) error {
		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat segment %d: %w", id, err)
		}
		size = info.Size()
		return nil
	})
	return size, err
}

// ReadAll returns the whole content of segment `id`.
func (r *Reader) ReadAll(id int) ([]byte, error) {
	var data []byte
	err := r.handles.Use(id, func(file *os.File) error {
		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat segment %d: %w", id, err)
		}
		data = make([]byte, info.Size())
		if _, err := file.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read segment %d: %w", id, err)
		}
		return nil
	})
	segmentReadBytes.Add(float64(len(data)))
	return data, err
}

// OpenIds returns the ids of the segment files currently open, in ascending order.
func (r *Reader) OpenIds() []int {
	ids := r.handles.Keys()
	slices.Sort(ids)
	return ids
}

// OpenFiles returns the number of segment files currently open.
func (r *Reader) OpenFiles() int {
	return r.handles.Len()
}

// Close closes every open segment file.
func (r *Reader) Close() error {
	return r.handles.Close()
}
