package blobstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	mmap "github.com/blevesearch/mmap-go"
	"github.com/gofrs/flock"
)

const (
	magic         = "CVC1"
	headerSize    = 4 + 4 + 4 + 4 + 8*8 // magic+version+n+d+4*(offset,size)
	containerVers = 1
)

// header is the fixed-size prefix describing the four variable-size
// regions (chunk directory, vector region, index region, metadata blob)
// per spec §4.A's "Layout (design-level)".
type header struct {
	Version        uint32
	N              uint32
	D              uint32
	_pad           uint32
	ChunkDirOffset uint64
	ChunkDirSize   uint64
	VectorOffset   uint64
	VectorSize     uint64
	IndexOffset    uint64
	IndexSize      uint64
	MetaOffset     uint64
	MetaSize       uint64
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.N)
	binary.LittleEndian.PutUint32(buf[12:16], h.D)
	binary.LittleEndian.PutUint64(buf[16:24], h.ChunkDirOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.ChunkDirSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.VectorOffset)
	binary.LittleEndian.PutUint64(buf[40:48], h.VectorSize)
	binary.LittleEndian.PutUint64(buf[48:56], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[56:64], h.IndexSize)
	binary.LittleEndian.PutUint64(buf[64:72], h.MetaOffset)
	binary.LittleEndian.PutUint64(buf[72:80], h.MetaSize)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, ErrCorruptContainer
	}
	if string(buf[0:4]) != magic {
		return header{}, ErrCorruptContainer
	}
	h := header{
		Version:        binary.LittleEndian.Uint32(buf[4:8]),
		N:              binary.LittleEndian.Uint32(buf[8:12]),
		D:              binary.LittleEndian.Uint32(buf[12:16]),
		ChunkDirOffset: binary.LittleEndian.Uint64(buf[16:24]),
		ChunkDirSize:   binary.LittleEndian.Uint64(buf[24:32]),
		VectorOffset:   binary.LittleEndian.Uint64(buf[32:40]),
		VectorSize:     binary.LittleEndian.Uint64(buf[40:48]),
		IndexOffset:    binary.LittleEndian.Uint64(buf[48:56]),
		IndexSize:      binary.LittleEndian.Uint64(buf[56:64]),
		MetaOffset:     binary.LittleEndian.Uint64(buf[64:72]),
		MetaSize:       binary.LittleEndian.Uint64(buf[72:80]),
	}
	return h, nil
}

// Store is a memory-mapped container handle.
type Store struct {
	path       string
	file       *os.File
	mapping    mmap.MMap
	snapshot   Snapshot
	dimensions int // the dimension this process was configured to embed with
}

// Open memory-maps path, parses the header, validates region sizes fit
// within the file, and refuses to open a container whose declared vector
// dimension disagrees with configuredDimensions (0 skips the check).
func Open(path string, configuredDimensions int) (*Store, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("blobstore: stat %s: %w", path, err)
	}
	if info.Size() < headerSize {
		file.Close()
		return nil, ErrCorruptContainer
	}

	mapping, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("blobstore: mmap %s: %w", path, err)
	}

	h, err := decodeHeader(mapping)
	if err != nil {
		mapping.Unmap()
		file.Close()
		return nil, err
	}

	fileSize := uint64(info.Size())
	regions := [][2]uint64{
		{h.ChunkDirOffset, h.ChunkDirSize},
		{h.VectorOffset, h.VectorSize},
		{h.IndexOffset, h.IndexSize},
		{h.MetaOffset, h.MetaSize},
	}
	for _, r := range regions {
		if r[0]+r[1] > fileSize {
			mapping.Unmap()
			file.Close()
			return nil, ErrCorruptContainer
		}
	}

	var meta Metadata
	metaBytes := mapping[h.MetaOffset : h.MetaOffset+h.MetaSize]
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		mapping.Unmap()
		file.Close()
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorruptContainer, err)
	}

	if configuredDimensions != 0 && meta.D != configuredDimensions {
		mapping.Unmap()
		file.Close()
		return nil, ErrDimensionMismatch
	}

	var chunks []Chunk
	chunkBytes := mapping[h.ChunkDirOffset : h.ChunkDirOffset+h.ChunkDirSize]
	if h.ChunkDirSize > 0 {
		if err := json.Unmarshal(chunkBytes, &chunks); err != nil {
			mapping.Unmap()
			file.Close()
			return nil, fmt.Errorf("%w: chunk directory: %v", ErrCorruptContainer, err)
		}
	}
	if len(chunks) != int(h.N) {
		mapping.Unmap()
		file.Close()
		return nil, ErrCorruptContainer
	}

	return &Store{
		path:       path,
		file:       file,
		mapping:    mapping,
		dimensions: configuredDimensions,
		snapshot: Snapshot{
			Chunks:     chunks,
			VectorBlob: mapping[h.VectorOffset : h.VectorOffset+h.VectorSize],
			IndexBlob:  mapping[h.IndexOffset : h.IndexOffset+h.IndexSize],
			Metadata:   meta,
		},
	}, nil
}

// Snapshot returns a zero-copy view into the mapped region.
func (s *Store) Snapshot() Snapshot { return s.snapshot }

// Close unmaps the file and releases the descriptor.
func (s *Store) Close() error {
	if s.mapping != nil {
		if err := s.mapping.Unmap(); err != nil {
			return fmt.Errorf("blobstore: unmap: %w", err)
		}
		s.mapping = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("blobstore: close: %w", err)
		}
		s.file = nil
	}
	return nil
}

// WriteSnapshot serialises chunks, vectorBytes, indexBytes and metadata
// atomically to path: write to a temp path under a file lock, fsync,
// rename over the existing file. It never partially modifies an existing
// container on failure.
func WriteSnapshot(path string, chunks []Chunk, vectorBytes, indexBytes []byte, meta Metadata) (string, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("blobstore: acquire write lock: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("blobstore: container %s is already being written", path)
	}
	defer lock.Unlock()

	chunkBytes, err := json.Marshal(chunks)
	if err != nil {
		return "", fmt.Errorf("blobstore: marshal chunks: %w", err)
	}

	meta.N = len(chunks)
	hash := computeHash(chunkBytes, vectorBytes, indexBytes, meta)
	meta.SnapshotHash = hash

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("blobstore: marshal metadata: %w", err)
	}

	h := header{
		Version:        containerVers,
		N:              uint32(meta.N),
		D:              uint32(meta.D),
		ChunkDirOffset: headerSize,
		ChunkDirSize:   uint64(len(chunkBytes)),
	}
	h.VectorOffset = h.ChunkDirOffset + h.ChunkDirSize
	h.VectorSize = uint64(len(vectorBytes))
	h.IndexOffset = h.VectorOffset + h.VectorSize
	h.IndexSize = uint64(len(indexBytes))
	h.MetaOffset = h.IndexOffset + h.IndexSize
	h.MetaSize = uint64(len(metaBytes))

	var buf bytes.Buffer
	buf.Write(h.encode())
	buf.Write(chunkBytes)
	buf.Write(vectorBytes)
	buf.Write(indexBytes)
	buf.Write(metaBytes)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blobstore: create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp file: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: rename temp file: %w", err)
	}

	return hash, nil
}

func computeHash(chunkBytes, vectorBytes, indexBytes []byte, meta Metadata) string {
	h := sha256.New()
	h.Write(chunkBytes)
	h.Write(vectorBytes)
	h.Write(indexBytes)
	fmt.Fprintf(h, "%d:%d:%s", meta.N, meta.D, meta.EmbeddingModelID)
	return fmt.Sprintf("%x", h.Sum(nil))
}
