package store

import (
	"encoding/json"
	"io"
	"math"
	"sync"

	"github.com/golang/snappy"
	"modernc.org/kv"

	ariesk "github.com/dcdanko/AriesK"
)

const schemaVersion = 1

// Meta holds the database-wide constants every AriesK database carries in
// its meta table: k, D, box_side, and a schema version guarding
// compatibility at load time.
type Meta struct {
	K       int     `json:"k"`
	D       int     `json:"d"`
	BoxSide float64 `json:"box_side"`
	Version int     `json:"version"`
}

// Provenance is the (contig_id, contig_offset) pair a k-mer record carries,
// mirroring the kmers table's columns beyond centroid_id and packed_kmer.
type Provenance struct {
	ContigID     int64
	ContigOffset int
}

// ContigRecord is one row of the contigs table.
type ContigRecord struct {
	ID          int64
	GenomeName  string
	ContigName  string
	Start       int
	End         int
	Sequence    string // decoded ACGT string, full contig
}

// Store is the embedded storage layer: one modernc.org/kv database file
// multiplexing the centroids/kmers/contigs/bloom_grids/meta tables by key
// prefix, plus an in-memory GridIndex mirroring the centroids table so
// repeated inserts into the same box are O(1), per the component this
// layer backs.
type Store struct {
	Meta Meta

	db    *kv.DB
	index *ariesk.GridIndex

	mu          sync.Mutex
	inBulkLoad  bool
	writesSince int
}

const bulkCommitBatch = 500

func compareBytes(x, y []byte) int {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		if x[i] != y[i] {
			if x[i] < y[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	}
	return 0
}

// Create makes a new database file at path with the given database-wide
// constants.
func Create(path string, meta Meta) (*Store, error) {
	meta.Version = schemaVersion
	db, err := kv.Create(path, &kv.Options{Compare: compareBytes})
	if err != nil {
		return nil, ariesk.Errorf(ariesk.StorageError, err, "creating database at %s", path)
	}
	s := &Store{
		Meta:  meta,
		db:    db,
		index: ariesk.NewGridIndex(meta.D, meta.BoxSide),
	}
	if err := s.writeMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing database file at path, validating its schema
// version and rebuilding the in-memory centroid index from the centroids
// table.
func Open(path string) (*Store, error) {
	db, err := kv.Open(path, &kv.Options{Compare: compareBytes})
	if err != nil {
		return nil, ariesk.Errorf(ariesk.StorageError, err, "opening database at %s", path)
	}
	s := &Store{db: db}
	if err := s.readMeta(); err != nil {
		db.Close()
		return nil, err
	}
	if s.Meta.Version != schemaVersion {
		db.Close()
		return nil, ariesk.Errorf(ariesk.ParameterMismatch, nil,
			"database schema version %d incompatible with %d", s.Meta.Version, schemaVersion)
	}
	s.index = ariesk.NewGridIndex(s.Meta.D, s.Meta.BoxSide)
	centroids, err := s.loadCentroids()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.index.Restore(centroids)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "closing database")
	}
	return nil
}

func (s *Store) writeMeta() error {
	buf, err := json.Marshal(s.Meta)
	if err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "encoding meta")
	}
	if err := s.db.Set(metaKey("meta"), buf); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "writing meta")
	}
	return nil
}

func (s *Store) readMeta() error {
	buf, err := s.db.Get(nil, metaKey("meta"))
	if err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "reading meta")
	}
	if buf == nil {
		return ariesk.Errorf(ariesk.StorageError, nil, "database has no meta record")
	}
	if err := json.Unmarshal(buf, &s.Meta); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "decoding meta")
	}
	return nil
}

// BeginBulkLoad marks the start of a batch of inserts. Writes made between
// BeginBulkLoad and CommitBulkLoad are grouped into kv transactions of
// bulkCommitBatch entries each, the same commit-every-N-records pattern
// kortschak-ins uses against the same underlying store for BLAST hits,
// rather than one kv transaction per insert.
func (s *Store) BeginBulkLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inBulkLoad = true
	s.writesSince = 0
	return s.beginTxnLocked()
}

// CommitBulkLoad flushes and ends a bulk load started by BeginBulkLoad.
func (s *Store) CommitBulkLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inBulkLoad = false
	return s.commitTxnLocked()
}

func (s *Store) beginTxnLocked() error {
	if err := s.db.BeginTransaction(); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "beginning transaction")
	}
	return nil
}

func (s *Store) commitTxnLocked() error {
	if err := s.db.Commit(); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "committing transaction")
	}
	return nil
}

// maybeAutoCommit commits the current transaction. Outside a bulk load this
// finalizes the single write the caller just made; during a bulk load it
// only fires every bulkCommitBatch writes, reopening a fresh transaction
// immediately after, bounding memory use during a large build without
// losing batching's speed advantage.
func (s *Store) maybeAutoCommit() error {
	if !s.inBulkLoad {
		return s.commitTxnLocked()
	}
	s.writesSince++
	if s.writesSince >= bulkCommitBatch {
		s.writesSince = 0
		if err := s.commitTxnLocked(); err != nil {
			return err
		}
		return s.beginTxnLocked()
	}
	return nil
}

func vectorBytes(v ariesk.RVector) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		order.PutUint64(buf[i*8:i*8+8], math.Float64bits(x))
	}
	return buf
}

func bytesVector(buf []byte) ariesk.RVector {
	v := make(ariesk.RVector, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(order.Uint64(buf[i*8 : i*8+8]))
	}
	return v
}

// AddPoint locates or allocates the centroid for vector (by its integer-
// tuple box key) and inserts a k-mer record under it with the given
// provenance, returning the centroid id.
func (s *Store) AddPoint(vector ariesk.RVector, kmer ariesk.Kmer, prov Provenance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, created := s.index.CentroidFor(vector)
	if !s.inBulkLoad {
		if err := s.beginTxnLocked(); err != nil {
			return 0, err
		}
	}
	if created {
		vb := vectorBytes(vector)
		if err := s.db.Set(centroidIDKey(id), vb); err != nil {
			return 0, ariesk.Errorf(ariesk.StorageError, err, "writing centroid %d", id)
		}
		if err := s.db.Set(centroidVecKey(vb), putUint64(uint64(id))); err != nil {
			return 0, ariesk.Errorf(ariesk.StorageError, err, "indexing centroid %d", id)
		}
	}

	seq, err := s.nextMemberSeq(id)
	if err != nil {
		return 0, err
	}
	buf, err := json.Marshal(kmerRecordWire{
		Packed:       kmer.Packed,
		Len:          kmer.Len,
		ContigID:     prov.ContigID,
		ContigOffset: prov.ContigOffset,
	})
	if err != nil {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "encoding kmer record")
	}
	if err := s.db.Set(kmerKey(id, seq), buf); err != nil {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "writing kmer record under centroid %d", id)
	}

	if err := s.maybeAutoCommit(); err != nil {
		return 0, err
	}
	return id, nil
}

type kmerRecordWire struct {
	Packed       []byte `json:"packed"`
	Len          int    `json:"len"`
	ContigID     int64  `json:"contig_id"`
	ContigOffset int    `json:"contig_offset"`
}

func (s *Store) nextMemberSeq(centroidID int64) (uint64, error) {
	key := memberSeqKey(centroidID)
	buf, err := s.db.Get(nil, key)
	if err != nil {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "reading member sequence for centroid %d", centroidID)
	}
	var next uint64
	if buf != nil {
		next = getUint64(buf) + 1
	}
	if err := s.db.Set(key, putUint64(next)); err != nil {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "writing member sequence for centroid %d", centroidID)
	}
	return next, nil
}

// GetClusterMembers returns every k-mer record stored under centroidID, in
// insertion order, satisfying ariesk.ClusterSource for inner search.
func (s *Store) GetClusterMembers(centroidID int64) ([]ariesk.ClusterMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := kmerKeyPrefix(centroidID)
	it, _, err := s.db.Seek(prefix)
	if err != nil && err != io.EOF {
		return nil, ariesk.Errorf(ariesk.StorageError, err, "seeking cluster members for centroid %d", centroidID)
	}
	var out []ariesk.ClusterMember
	for it != nil {
		k, v, nerr := it.Next()
		if nerr != nil {
			break
		}
		if !hasPrefix(k, prefix) {
			break
		}
		var w kmerRecordWire
		if err := json.Unmarshal(v, &w); err != nil {
			return nil, ariesk.Errorf(ariesk.StorageError, err, "decoding kmer record")
		}
		out = append(out, ariesk.ClusterMember{
			CentroidID:   centroidID,
			Index:        len(out),
			Kmer:         ariesk.Kmer{Packed: w.Packed, Len: w.Len},
			ContigID:     w.ContigID,
			ContigOffset: w.ContigOffset,
		})
	}
	return out, nil
}

// Centroids returns every centroid known to the store, via the in-memory
// index that mirrors the centroids table.
func (s *Store) Centroids() []ariesk.Centroid {
	return s.index.Centroids()
}

func (s *Store) loadCentroids() ([]ariesk.Centroid, error) {
	prefix := []byte{byte(prefixCentroidID)}
	it, _, err := s.db.Seek(prefix)
	if err != nil && err != io.EOF {
		return nil, ariesk.Errorf(ariesk.StorageError, err, "seeking centroids")
	}
	byID := map[int64]ariesk.RVector{}
	var maxID int64 = -1
	for it != nil {
		k, v, nerr := it.Next()
		if nerr != nil {
			break
		}
		if !hasPrefix(k, prefix) {
			break
		}
		id := int64(getUint64(k[1:]))
		vec := bytesVector(v)
		byID[id] = vec
		if id > maxID {
			maxID = id
		}
	}
	out := make([]ariesk.Centroid, 0, len(byID))
	for id := int64(0); id <= maxID; id++ {
		vec, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, ariesk.Centroid{
			ID:     id,
			Key:    ariesk.CentroidKeyOf(vec, s.Meta.BoxSide),
			Vector: vec,
		})
	}
	return out, nil
}

// AddContig inserts a new contig record and returns its assigned id. Ids
// start at 0; each new id is one more than the highest id found by scanning
// the contigs table on this call.
func (s *Store) AddContig(genomeName, contigName string, start, end int, sequence string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextContigID()
	if err != nil {
		return 0, err
	}
	if !s.inBulkLoad {
		if err := s.beginTxnLocked(); err != nil {
			return 0, err
		}
	}
	wire := contigWire{
		GenomeName: genomeName,
		ContigName: contigName,
		Start:      start,
		End:        end,
		Sequence:   snappy.Encode(nil, []byte(sequence)),
	}
	buf, err := json.Marshal(wire)
	if err != nil {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "encoding contig record")
	}
	if err := s.db.Set(contigKey(id), buf); err != nil {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "writing contig %d", id)
	}
	if err := s.maybeAutoCommit(); err != nil {
		return 0, err
	}
	return id, nil
}

type contigWire struct {
	GenomeName string `json:"genome_name"`
	ContigName string `json:"contig_name"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Sequence   []byte `json:"sequence"` // snappy-compressed
}

func (s *Store) nextContigID() (int64, error) {
	it, _, err := s.db.Seek(contigKeyPrefix())
	if err != nil && err != io.EOF {
		return 0, ariesk.Errorf(ariesk.StorageError, err, "seeking contigs")
	}
	var maxID int64 = -1
	prefix := contigKeyPrefix()
	for it != nil {
		k, _, nerr := it.Next()
		if nerr != nil {
			break
		}
		if !hasPrefix(k, prefix) {
			break
		}
		id := int64(getUint64(k[1:]))
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1, nil
}

// GetAllContigs returns every contig record in the database.
func (s *Store) GetAllContigs() ([]ContigRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := contigKeyPrefix()
	it, _, err := s.db.Seek(prefix)
	if err != nil && err != io.EOF {
		return nil, ariesk.Errorf(ariesk.StorageError, err, "seeking contigs")
	}
	var out []ContigRecord
	for it != nil {
		k, v, nerr := it.Next()
		if nerr != nil {
			break
		}
		if !hasPrefix(k, prefix) {
			break
		}
		id := int64(getUint64(k[1:]))
		rec, err := decodeContigWire(id, v)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ContigMeta returns a contig's genome/contig name and total sequence
// length without the caller needing to slice GetSequence(0, len) itself.
func (s *Store) ContigMeta(contigID int64) (genomeName, contigName string, length int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, err := s.db.Get(nil, contigKey(contigID))
	if err != nil {
		return "", "", 0, ariesk.Errorf(ariesk.StorageError, err, "reading contig %d", contigID)
	}
	if buf == nil {
		return "", "", 0, ariesk.Errorf(ariesk.NotFound, nil, "no such contig %d", contigID)
	}
	rec, err := decodeContigWire(contigID, buf)
	if err != nil {
		return "", "", 0, err
	}
	return rec.GenomeName, rec.ContigName, len(rec.Sequence), nil
}

// GetSequence returns the [start,end) slice of contigID's decoded sequence.
func (s *Store) GetSequence(contigID int64, start, end int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, err := s.db.Get(nil, contigKey(contigID))
	if err != nil {
		return "", ariesk.Errorf(ariesk.StorageError, err, "reading contig %d", contigID)
	}
	if buf == nil {
		return "", ariesk.Errorf(ariesk.NotFound, nil, "no such contig %d", contigID)
	}
	rec, err := decodeContigWire(contigID, buf)
	if err != nil {
		return "", err
	}
	if start < 0 || end > len(rec.Sequence) || start > end {
		return "", ariesk.Errorf(ariesk.InvalidInput, nil,
			"sequence range [%d,%d) out of bounds for contig %d (length %d)", start, end, contigID, len(rec.Sequence))
	}
	return rec.Sequence[start:end], nil
}

func decodeContigWire(id int64, buf []byte) (ContigRecord, error) {
	var w contigWire
	if err := json.Unmarshal(buf, &w); err != nil {
		return ContigRecord{}, ariesk.Errorf(ariesk.StorageError, err, "decoding contig %d", id)
	}
	seq, err := snappy.Decode(nil, w.Sequence)
	if err != nil {
		return ContigRecord{}, ariesk.Errorf(ariesk.StorageError, err, "decompressing contig %d", id)
	}
	return ContigRecord{
		ID:         id,
		GenomeName: w.GenomeName,
		ContigName: w.ContigName,
		Start:      w.Start,
		End:        w.End,
		Sequence:   string(seq),
	}, nil
}
