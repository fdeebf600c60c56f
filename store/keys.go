// Package store is the embedded, ordered key-value storage layer. It
// multiplexes several logical tables inside one modernc.org/kv database by
// prefixing every key with a single table byte, the way kortschak-ins
// partitions forward.db/regions.db/reverse.db by a custom kv.Options.Compare
// function — here a single store needs cross-table transactions (a bulk
// load touches centroids, kmers, and contigs together), so table separation
// is done by key prefix within one kv.DB rather than by file.
package store

import "encoding/binary"

type tablePrefix byte

const (
	prefixMeta       tablePrefix = 0x01
	prefixCentroidID tablePrefix = 0x02 // id -> vector
	prefixCentroidVec tablePrefix = 0x03 // vector bytes -> id
	prefixKmer       tablePrefix = 0x04 // centroid_id, seq -> kmer record
	prefixContig     tablePrefix = 0x05 // contig id -> contig record
	prefixBloomGrid  tablePrefix = 0x06 // centroid_id -> bloom grid blob
	prefixMemberSeq  tablePrefix = 0x07 // centroid_id -> next member sequence number
)

var order = binary.BigEndian

func putUint64(n uint64) []byte {
	b := make([]byte, 8)
	order.PutUint64(b, n)
	return b
}

func getUint64(b []byte) uint64 { return order.Uint64(b) }

// centroidIDKey builds the primary-table key for a centroid id.
func centroidIDKey(id int64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(prefixCentroidID))
	k = append(k, putUint64(uint64(id))...)
	return k
}

// centroidVecKey builds the secondary-index key for a centroid vector,
// giving O(log n) lookup in the vector->id direction alongside the
// id->vector direction the primary key gives.
func centroidVecKey(vecBytes []byte) []byte {
	k := make([]byte, 0, 1+len(vecBytes))
	k = append(k, byte(prefixCentroidVec))
	k = append(k, vecBytes...)
	return k
}

// kmerKeyPrefix is the shared prefix of every kmer record belonging to
// centroidID; a Seek on this prefix followed by sequential Next calls
// enumerates get_cluster_members(centroid_id).
func kmerKeyPrefix(centroidID int64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(prefixKmer))
	k = append(k, putUint64(uint64(centroidID))...)
	return k
}

func kmerKey(centroidID int64, seq uint64) []byte {
	k := kmerKeyPrefix(centroidID)
	return append(k, putUint64(seq)...)
}

func contigKey(id int64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(prefixContig))
	k = append(k, putUint64(uint64(id))...)
	return k
}

func contigKeyPrefix() []byte {
	return []byte{byte(prefixContig)}
}

func bloomGridKey(centroidID int64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(prefixBloomGrid))
	k = append(k, putUint64(uint64(centroidID))...)
	return k
}

func memberSeqKey(centroidID int64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(prefixMemberSeq))
	k = append(k, putUint64(uint64(centroidID))...)
	return k
}

func metaKey(name string) []byte {
	return append([]byte{byte(prefixMeta)}, []byte(name)...)
}

// hasPrefix reports whether key starts with prefix, used to detect the end
// of a prefix scan when walking a kv.Enumerator.
func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
