package snapcache

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/logging"
)

// FormatVersion is bumped whenever the encoded snapshot layout changes.
const FormatVersion = 1

var (
	// ErrVersionMismatch means the file was written by another format.
	ErrVersionMismatch = errors.New("snapshot cache format mismatch")
)

// Header describes a cached snapshot without decoding it.
type Header struct {
	FormatVersion int       `json:"format_version"`
	SavedAt       time.Time `json:"saved_at"`
	Minted        time.Time `json:"minted"`
	Digest        string    `json:"digest"`
	Items         int       `json:"items"`
	Characters    int       `json:"characters"`
}

// Cache reads and writes one snapshot file. An empty path disables it.
type Cache struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// New creates a cache at path.
func New(path string, logger *slog.Logger) *Cache {
	return &Cache{
		path:   path,
		logger: logging.NewComponentLogger(logger, "snapcache"),
		now:    time.Now,
	}
}

// Enabled reports whether a path is configured.
func (c *Cache) Enabled() bool { return c != nil && c.path != "" }

// Save replaces the cached snapshot atomically.
func (c *Cache) Save(snap inventory.Snapshot) error {
	if !c.Enabled() {
		return nil
	}
	digest, err := snap.Digest()
	if err != nil {
		return err
	}
	header := Header{
		FormatVersion: FormatVersion,
		SavedAt:       c.now().UTC(),
		Minted:        snap.Timestamp,
		Digest:        digest,
		Items:         snap.ItemCount(),
		Characters:    len(snap.Characters),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	tmpPath := c.path + ".tmp"
	if err := writeFile(tmpPath, header, snap); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	c.logger.Debug("saved snapshot cache",
		logging.Int("item_count", header.Items),
		logging.Time("minted", header.Minted),
	)
	return nil
}

func writeFile(path string, header Header, snap inventory.Snapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	return f.Sync()
}

// Load returns the cached snapshot. ok is false when there is no cache.
func (c *Cache) Load() (snap inventory.Snapshot, header Header, ok bool, err error) {
	if !c.Enabled() {
		return inventory.Snapshot{}, Header{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return inventory.Snapshot{}, Header{}, false, nil
		}
		return inventory.Snapshot{}, Header{}, false, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return inventory.Snapshot{}, Header{}, false, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 64*1024)

	header, err = readHeader(br)
	if err != nil {
		return inventory.Snapshot{}, Header{}, false, err
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return inventory.Snapshot{}, Header{}, false, fmt.Errorf("gob decode: %w", err)
	}
	snap = snap.Normalize()
	if err := snap.Validate(); err != nil {
		return inventory.Snapshot{}, Header{}, false, fmt.Errorf("cached snapshot: %w", err)
	}
	return snap, header, true, nil
}

// Header reads only the header line.
func (c *Cache) Header() (Header, bool, error) {
	if !c.Enabled() {
		return Header{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Header{}, false, nil
		}
		return Header{}, false, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, false, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	header, err := readHeader(bufio.NewReader(dec))
	if err != nil {
		return Header{}, false, err
	}
	return header, true, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(line, &header); err != nil {
		return Header{}, fmt.Errorf("parse header: %w", err)
	}
	if header.FormatVersion != FormatVersion {
		return Header{}, fmt.Errorf("%w: file %d, expected %d", ErrVersionMismatch, header.FormatVersion, FormatVersion)
	}
	return header, nil
}

// Clear removes the cache file.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}
