package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an in-process index using brute-force search.
// Suitable for tests, the offline mode, and small corpora.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	bound       *memoryCollection
}

type memoryCollection struct {
	spec    CollectionSpec
	ids     []string
	pos     map[string]int
	vectors [][]float32
	meta    []map[string]string
}

func newMemoryCollection(spec CollectionSpec) *memoryCollection {
	return &memoryCollection{spec: spec, pos: make(map[string]int)}
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memoryCollection)}
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// EnsureCollection creates the named collection if missing and binds to it. An existing
// collection with a different dimension or metric is a provisioning error.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrIndexProvisioning, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[spec.Name]
	if !ok {
		c = newMemoryCollection(spec)
		m.collections[spec.Name] = c
	} else if c.spec.Dimension != spec.Dimension || c.spec.Metric != spec.Metric {
		return fmt.Errorf("%w: collection %s exists with dimension %d and metric %s",
			models.ErrIndexProvisioning, spec.Name, c.spec.Dimension, c.spec.Metric)
	}
	m.bound = c
	return nil
}

// Upsert inserts records or overwrites those whose id already exists. The batch is
// checked before anything is written, so a bad record leaves the index unchanged.
func (m *MemoryIndex) Upsert(ctx context.Context, records []models.IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.bound
	if c == nil {
		return fmt.Errorf("%w: %w", models.ErrIndexWrite, errNotBound)
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record id is empty", models.ErrIndexWrite)
		}
		if len(r.Values) != c.spec.Dimension {
			return fmt.Errorf("%w: record %s has dimension %d, expected %d",
				models.ErrIndexWrite, r.ID, len(r.Values), c.spec.Dimension)
		}
	}
	for _, r := range records {
		vec := make([]float32, len(r.Values))
		copy(vec, r.Values)
		meta := copyMetadata(r.Metadata)
		if i, ok := c.pos[r.ID]; ok {
			c.vectors[i] = vec
			c.meta[i] = meta
			continue
		}
		c.pos[r.ID] = len(c.ids)
		c.ids = append(c.ids, r.ID)
		c.vectors = append(c.vectors, vec)
		c.meta = append(c.meta, meta)
	}
	return nil
}

// Query scores every record against vector and returns the best topK.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.Match, error) {
	if err := ValidateTopK(topK); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := m.bound
	if c == nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIndexQuery, errNotBound)
	}
	if len(vector) != c.spec.Dimension {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d",
			models.ErrIndexQuery, len(vector), c.spec.Dimension)
	}
	matches := make([]models.Match, len(c.ids))
	for i, id := range c.ids {
		matches[i] = models.Match{ID: id, Score: Score(c.spec.Metric, vector, c.vectors[i])}
		if includeMetadata {
			matches[i].Metadata = copyMetadata(c.meta[i])
		}
	}
	SortMatches(matches)
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Count returns the number of records in the bound collection.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bound == nil {
		return 0, nil
	}
	return len(m.bound.ids), nil
}

// Save persists the bound collection to path. Directory is created if needed. Format:
// dimension (4), n (4), then per record: id, metadata pair count (4), key/value pairs,
// vector (dimension*4 bytes). Strings are a 4-byte length followed by the bytes.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" || m.bound == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	c := m.bound
	if err := binary.Write(w, binary.LittleEndian, uint32(c.spec.Dimension)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range c.ids {
		if err := writeString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(c.meta[i]))); err != nil {
			return fmt.Errorf("write metadata count: %w", err)
		}
		for k, v := range c.meta[i] {
			if err := writeString(w, k); err != nil {
				return fmt.Errorf("write metadata key: %w", err)
			}
			if err := writeString(w, v); err != nil {
				return fmt.Errorf("write metadata value: %w", err)
			}
		}
		if _, err := w.Write(float32SliceToBytes(c.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return w.Flush()
}

// Load replaces the bound collection's records with the snapshot at path. Dimensions
// must match. If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bound == nil {
		return errNotBound
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.bound.spec.Dimension {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.bound.spec.Dimension)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	c := newMemoryCollection(m.bound.spec)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		var pairs uint32
		if err := binary.Read(r, binary.LittleEndian, &pairs); err != nil {
			return fmt.Errorf("read metadata count: %w", err)
		}
		var meta map[string]string
		if pairs > 0 {
			meta = make(map[string]string, pairs)
		}
		for j := uint32(0); j < pairs; j++ {
			k, err := readString(r)
			if err != nil {
				return fmt.Errorf("read metadata key: %w", err)
			}
			v, err := readString(r)
			if err != nil {
				return fmt.Errorf("read metadata value: %w", err)
			}
			meta[k] = v
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		c.pos[id] = len(c.ids)
		c.ids = append(c.ids, id)
		c.vectors = append(c.vectors, bytesToFloat32Slice(buf))
		c.meta = append(c.meta, meta)
	}
	m.collections[c.spec.Name] = c
	m.bound = c
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func copyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
