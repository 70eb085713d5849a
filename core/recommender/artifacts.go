package recommender

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Artifact file names within the artifact directory.
const (
	EmbeddingsFile = "embeddings.bin"
	BookIndexFile  = "book_index.json"
	RatingsFile    = "ratings.bin"
	ManifestFile   = "manifest.json"
)

const (
	embeddingsMagic = uint32(0x424D4531) // "BME1"
	ratingsMagic    = uint32(0x424D4331) // "BMC1"
	codecVersion    = uint32(1)
)

// =============================================================================
// In-memory artifact types
// =============================================================================

// EmbeddingMatrix is a dense row-major matrix of book embeddings. Row i is
// the vector of the book at position i in the paired book index. Immutable
// once loaded; a rebuild replaces it wholesale.
type EmbeddingMatrix struct {
	dim  int
	data []float32
}

// NewEmbeddingMatrix creates an empty matrix with the given vector dimension.
func NewEmbeddingMatrix(dim int) *EmbeddingMatrix {
	return &EmbeddingMatrix{dim: dim}
}

// Append adds one row. The vector length must equal the matrix dimension.
func (m *EmbeddingMatrix) Append(vec []float32) error {
	if len(vec) != m.dim {
		return fmt.Errorf("%w: vector has %d dims, matrix has %d", ErrDimensionMismatch, len(vec), m.dim)
	}
	m.data = append(m.data, vec...)
	return nil
}

// Rows returns the number of embedded books.
func (m *EmbeddingMatrix) Rows() int {
	if m.dim == 0 {
		return 0
	}
	return len(m.data) / m.dim
}

// Dim returns the vector dimension.
func (m *EmbeddingMatrix) Dim() int {
	return m.dim
}

// Row returns row i as a view into the matrix. Callers must not mutate it.
func (m *EmbeddingMatrix) Row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim]
}

// IDIndex is a bijective mapping between stable int64 ids and dense
// positions [0, N). The same type backs the embedding-side book index and
// the rating matrix's user and item indexes; those index spaces are
// independent and must never be mixed.
type IDIndex struct {
	ids       []int64
	positions map[int64]int
}

// NewIDIndex builds an index where position i maps to ids[i]. Duplicate ids
// would break the bijection and are rejected.
func NewIDIndex(ids []int64) (*IDIndex, error) {
	positions := make(map[int64]int, len(ids))
	for i, id := range ids {
		if _, dup := positions[id]; dup {
			return nil, fmt.Errorf("duplicate id %d in index", id)
		}
		positions[id] = i
	}
	return &IDIndex{ids: ids, positions: positions}, nil
}

// Len returns the number of indexed ids.
func (x *IDIndex) Len() int {
	return len(x.ids)
}

// Position returns the dense position of id.
func (x *IDIndex) Position(id int64) (int, bool) {
	pos, ok := x.positions[id]
	return pos, ok
}

// IDAt returns the id at position pos.
func (x *IDIndex) IDAt(pos int) int64 {
	return x.ids[pos]
}

// IDs returns the position-ordered id slice. Callers must not mutate it.
func (x *IDIndex) IDs() []int64 {
	return x.ids
}

// RatingBundle holds the user-item rating matrix and its two id indexes.
// Cells are ratings in [1,5]; 0 means unrated. The item index here is local
// to this matrix and independent of the embedding-side book index.
type RatingBundle struct {
	Matrix *mat.Dense
	Users  *IDIndex
	Items  *IDIndex
}

// Manifest records what a rebuild produced. It is written last during
// install, so a readable manifest always points at fully written blobs.
type Manifest struct {
	RunID     string    `json:"run_id"`
	BuiltAt   time.Time `json:"built_at"`
	Books     int       `json:"books"`
	Users     int       `json:"users"`
	Ratings   int       `json:"ratings"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model"`
}

// ArtifactSet is one coherent, immutable generation of ranking artifacts.
// Any field may be nil; each ranking source degrades independently.
type ArtifactSet struct {
	Embeddings *EmbeddingMatrix
	Books      *IDIndex
	Ratings    *RatingBundle
	Manifest   *Manifest
}

// HasContent reports whether content-based ranking is possible.
func (s *ArtifactSet) HasContent() bool {
	return s != nil && s.Embeddings != nil && s.Books != nil &&
		s.Embeddings.Rows() == s.Books.Len() && s.Books.Len() > 0
}

// HasCollaborative reports whether collaborative ranking is possible.
func (s *ArtifactSet) HasCollaborative() bool {
	return s != nil && s.Ratings != nil && s.Ratings.Matrix != nil &&
		s.Ratings.Users != nil && s.Ratings.Items != nil
}

// RunID returns the manifest run id, or "" when no manifest is loaded.
func (s *ArtifactSet) RunID() string {
	if s == nil || s.Manifest == nil {
		return ""
	}
	return s.Manifest.RunID
}

// =============================================================================
// Persistence
// =============================================================================

// SaveEmbeddings persists the embedding matrix and its book index together.
// Each file is written to a temp path and renamed, so concurrent readers
// never observe a partial artifact.
func SaveEmbeddings(dir string, m *EmbeddingMatrix, idx *IDIndex) error {
	if m.Rows() != idx.Len() {
		return fmt.Errorf("embedding matrix has %d rows but index has %d ids", m.Rows(), idx.Len())
	}

	buf := make([]byte, 16+len(m.data)*4)
	binary.LittleEndian.PutUint32(buf[0:], embeddingsMagic)
	binary.LittleEndian.PutUint32(buf[4:], codecVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(m.Rows()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(m.dim))
	for i, v := range m.data {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(v))
	}

	if err := writeFileAtomic(filepath.Join(dir, EmbeddingsFile), buf); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}

	idxData, err := json.Marshal(bookIndexFile{IDs: idx.ids})
	if err != nil {
		return fmt.Errorf("encode book index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, BookIndexFile), idxData); err != nil {
		return fmt.Errorf("write book index: %w", err)
	}

	return nil
}

type bookIndexFile struct {
	IDs []int64 `json:"ids"`
}

// LoadEmbeddings reads the embedding matrix and book index. A missing file
// yields ErrArtifactMissing; a malformed one yields ErrArtifactCorrupt.
func LoadEmbeddings(dir string) (*EmbeddingMatrix, *IDIndex, error) {
	data, err := readArtifact(filepath.Join(dir, EmbeddingsFile), "embeddings")
	if err != nil {
		return nil, nil, err
	}

	if len(data) < 16 {
		return nil, nil, corrupt("embeddings", "truncated header")
	}
	if binary.LittleEndian.Uint32(data[0:]) != embeddingsMagic {
		return nil, nil, corrupt("embeddings", "bad magic")
	}
	if binary.LittleEndian.Uint32(data[4:]) != codecVersion {
		return nil, nil, corrupt("embeddings", "unsupported version")
	}
	rows := int(binary.LittleEndian.Uint32(data[8:]))
	dim := int(binary.LittleEndian.Uint32(data[12:]))
	if len(data) != 16+rows*dim*4 {
		return nil, nil, corrupt("embeddings", "payload size mismatch")
	}

	m := &EmbeddingMatrix{dim: dim, data: make([]float32, rows*dim)}
	for i := range m.data {
		m.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[16+i*4:]))
	}

	idxData, err := readArtifact(filepath.Join(dir, BookIndexFile), "book index")
	if err != nil {
		return nil, nil, err
	}
	var idxFile bookIndexFile
	if err := json.Unmarshal(idxData, &idxFile); err != nil {
		return nil, nil, corrupt("book index", err.Error())
	}
	idx, err := NewIDIndex(idxFile.IDs)
	if err != nil {
		return nil, nil, corrupt("book index", err.Error())
	}
	if idx.Len() != rows {
		return nil, nil, corrupt("book index", fmt.Sprintf("index has %d ids, matrix has %d rows", idx.Len(), rows))
	}

	return m, idx, nil
}

// SaveRatings persists the rating matrix with its user and item id tables
// as one blob.
func SaveRatings(dir string, b *RatingBundle) error {
	users, items := b.Matrix.Dims()
	if users != b.Users.Len() || items != b.Items.Len() {
		return fmt.Errorf("rating matrix is %dx%d but indexes are %dx%d",
			users, items, b.Users.Len(), b.Items.Len())
	}

	raw := b.Matrix.RawMatrix().Data
	buf := make([]byte, 16+len(raw)*8+users*8+items*8)
	binary.LittleEndian.PutUint32(buf[0:], ratingsMagic)
	binary.LittleEndian.PutUint32(buf[4:], codecVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(users))
	binary.LittleEndian.PutUint32(buf[12:], uint32(items))

	off := 16
	for _, v := range raw {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	for _, id := range b.Users.ids {
		binary.LittleEndian.PutUint64(buf[off:], uint64(id))
		off += 8
	}
	for _, id := range b.Items.ids {
		binary.LittleEndian.PutUint64(buf[off:], uint64(id))
		off += 8
	}

	if err := writeFileAtomic(filepath.Join(dir, RatingsFile), buf); err != nil {
		return fmt.Errorf("write ratings: %w", err)
	}
	return nil
}

// LoadRatings reads the rating matrix bundle.
func LoadRatings(dir string) (*RatingBundle, error) {
	data, err := readArtifact(filepath.Join(dir, RatingsFile), "ratings")
	if err != nil {
		return nil, err
	}

	if len(data) < 16 {
		return nil, corrupt("ratings", "truncated header")
	}
	if binary.LittleEndian.Uint32(data[0:]) != ratingsMagic {
		return nil, corrupt("ratings", "bad magic")
	}
	if binary.LittleEndian.Uint32(data[4:]) != codecVersion {
		return nil, corrupt("ratings", "unsupported version")
	}
	users := int(binary.LittleEndian.Uint32(data[8:]))
	items := int(binary.LittleEndian.Uint32(data[12:]))
	want := 16 + users*items*8 + users*8 + items*8
	if len(data) != want {
		return nil, corrupt("ratings", "payload size mismatch")
	}

	cells := make([]float64, users*items)
	off := 16
	for i := range cells {
		cells[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		off += 8
	}
	userIDs := make([]int64, users)
	for i := range userIDs {
		userIDs[i] = int64(binary.LittleEndian.Uint64(data[off:]))
		off += 8
	}
	itemIDs := make([]int64, items)
	for i := range itemIDs {
		itemIDs[i] = int64(binary.LittleEndian.Uint64(data[off:]))
		off += 8
	}

	userIdx, err := NewIDIndex(userIDs)
	if err != nil {
		return nil, corrupt("ratings", err.Error())
	}
	itemIdx, err := NewIDIndex(itemIDs)
	if err != nil {
		return nil, corrupt("ratings", err.Error())
	}

	return &RatingBundle{
		Matrix: mat.NewDense(users, items, cells),
		Users:  userIdx,
		Items:  itemIdx,
	}, nil
}

// SaveManifest persists the rebuild manifest. Callers write this last.
func SaveManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, ManifestFile), data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the rebuild manifest.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := readArtifact(filepath.Join(dir, ManifestFile), "manifest")
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, corrupt("manifest", err.Error())
	}
	return &m, nil
}

// LoadArtifactSet loads whatever artifacts exist in dir. Missing or corrupt
// artifacts degrade the corresponding ranking source to empty; corrupt ones
// are logged as warnings. The returned set is never nil.
func LoadArtifactSet(dir string, logger *slog.Logger) *ArtifactSet {
	if logger == nil {
		logger = slog.Default()
	}

	set := &ArtifactSet{}

	m, idx, err := LoadEmbeddings(dir)
	switch {
	case err == nil:
		set.Embeddings = m
		set.Books = idx
	default:
		logLoadFailure(logger, "content ranking disabled", err)
	}

	ratings, err := LoadRatings(dir)
	switch {
	case err == nil:
		set.Ratings = ratings
	default:
		logLoadFailure(logger, "collaborative ranking disabled", err)
	}

	manifest, err := LoadManifest(dir)
	if err == nil {
		set.Manifest = manifest
	}

	return set
}

// =============================================================================
// Internals
// =============================================================================

func readArtifact(path, name string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{Artifact: name, Err: ErrArtifactMissing}
		}
		return nil, &LoadError{Artifact: name, Err: fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)}
	}
	return data, nil
}

func corrupt(name, detail string) error {
	return &LoadError{Artifact: name, Err: fmt.Errorf("%w: %s", ErrArtifactCorrupt, detail)}
}

func logLoadFailure(logger *slog.Logger, consequence string, err error) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) && errors.Is(loadErr.Err, ErrArtifactMissing) {
		logger.Info(consequence, "reason", loadErr.Error())
		return
	}
	logger.Warn(consequence, "reason", err.Error())
}

// writeFileAtomic writes to a temp file then renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("install file: %w", err)
	}
	return nil
}
