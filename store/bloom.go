package store

import (
	"encoding/json"

	"github.com/golang/snappy"

	ariesk "github.com/dcdanko/AriesK"
	"github.com/dcdanko/AriesK/bloomgrid"
)

type bloomGridWire struct {
	M        uint64   `json:"m"`
	H        int      `json:"h"`
	Rows     int      `json:"rows"`
	NHashes  int      `json:"n_hashes"`
	Array    []byte   `json:"array_bits"`
	GridRows [][]byte `json:"grid_bits"`
}

// SaveBloomGrid persists the array and per-member grid bloom for
// centroidID, snappy-compressing the bit vectors before storage.
func (s *Store) SaveBloomGrid(centroidID int64, params bloomgrid.Params, arr *bloomgrid.Array, grid *bloomgrid.Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := grid.MarshalRows()
	compressedRows := make([][]byte, len(rows))
	for i, r := range rows {
		compressedRows[i] = snappy.Encode(nil, r)
	}
	wire := bloomGridWire{
		M:        params.M,
		H:        params.H,
		Rows:     grid.Rows(),
		NHashes:  params.H,
		Array:    snappy.Encode(nil, arr.MarshalBits()),
		GridRows: compressedRows,
	}
	buf, err := json.Marshal(wire)
	if err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "encoding bloom grid for centroid %d", centroidID)
	}
	if !s.inBulkLoad {
		if err := s.beginTxnLocked(); err != nil {
			return err
		}
	}
	if err := s.db.Set(bloomGridKey(centroidID), buf); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "writing bloom grid for centroid %d", centroidID)
	}
	return s.maybeAutoCommit()
}

// LoadBloomGrid returns the persisted bloom grid for centroidID, if one
// exists. The bool result is false when no bloom grid has been built yet
// for that centroid (inner search then falls back to skipping the
// pre-filter per its "bloom grid may be absent" case).
func (s *Store) LoadBloomGrid(centroidID int64) (bloomgrid.Params, *bloomgrid.Array, *bloomgrid.Grid, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.db.Get(nil, bloomGridKey(centroidID))
	if err != nil {
		return bloomgrid.Params{}, nil, nil, false, ariesk.Errorf(ariesk.StorageError, err,
			"reading bloom grid for centroid %d", centroidID)
	}
	if buf == nil {
		return bloomgrid.Params{}, nil, nil, false, nil
	}
	var wire bloomGridWire
	if err := json.Unmarshal(buf, &wire); err != nil {
		return bloomgrid.Params{}, nil, nil, false, ariesk.Errorf(ariesk.StorageError, err,
			"decoding bloom grid for centroid %d", centroidID)
	}
	params := bloomgrid.Params{M: wire.M, H: wire.H}

	arrBits, err := snappy.Decode(nil, wire.Array)
	if err != nil {
		return bloomgrid.Params{}, nil, nil, false, ariesk.Errorf(ariesk.StorageError, err,
			"decompressing array bloom for centroid %d", centroidID)
	}
	arr := bloomgrid.UnmarshalArray(params, arrBits)

	rows := make([][]byte, len(wire.GridRows))
	for i, r := range wire.GridRows {
		decoded, err := snappy.Decode(nil, r)
		if err != nil {
			return bloomgrid.Params{}, nil, nil, false, ariesk.Errorf(ariesk.StorageError, err,
				"decompressing grid row %d for centroid %d", i, centroidID)
		}
		rows[i] = decoded
	}
	grid := bloomgrid.UnmarshalGrid(params, rows)

	return params, arr, grid, true, nil
}

// deleteBloomGrid removes a centroid's persisted bloom grid, used by
// LoadOther when a merge invalidates a previously built grid.
func (s *Store) deleteBloomGrid(centroidID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inBulkLoad {
		if err := s.beginTxnLocked(); err != nil {
			return err
		}
	}
	if err := s.db.Delete(bloomGridKey(centroidID)); err != nil {
		return ariesk.Errorf(ariesk.StorageError, err, "deleting bloom grid for centroid %d", centroidID)
	}
	return s.maybeAutoCommit()
}
