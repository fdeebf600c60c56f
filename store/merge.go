package store

import ariesk "github.com/dcdanko/AriesK"

// LoadOther merges other into s. If a centroid with an identical integer-
// tuple key exists in both stores, their clusters are unioned into s's
// existing centroid id and s's bloom grid for that centroid (now stale) is
// discarded; otherwise the incoming centroid is appended under a new id in
// s, carrying its bloom grid across unchanged since no merge touched it.
// Merge is idempotent modulo id reassignment: the resulting set of
// (key, cluster-members) pairs does not depend on call order.
func (s *Store) LoadOther(other *Store) error {
	if s.Meta.K != other.Meta.K || s.Meta.D != other.Meta.D || s.Meta.BoxSide != other.Meta.BoxSide {
		return ariesk.Errorf(ariesk.ParameterMismatch, nil,
			"cannot merge databases with differing k/D/box_side (%d/%d/%v vs %d/%d/%v)",
			s.Meta.K, s.Meta.D, s.Meta.BoxSide, other.Meta.K, other.Meta.D, other.Meta.BoxSide)
	}

	if err := s.BeginBulkLoad(); err != nil {
		return err
	}

	ownByKey := map[string]int64{}
	for _, c := range s.Centroids() {
		ownByKey[c.Key.String()] = c.ID
	}

	for _, oc := range other.Centroids() {
		key := oc.Key.String()
		targetID, merged := ownByKey[key]
		if merged {
			if err := s.deleteBloomGrid(targetID); err != nil {
				return err
			}
		} else {
			newID, created := s.index.CentroidFor(oc.Vector)
			if created {
				vb := vectorBytes(oc.Vector)
				if err := s.db.Set(centroidIDKey(newID), vb); err != nil {
					return ariesk.Errorf(ariesk.StorageError, err, "writing merged centroid %d", newID)
				}
				if err := s.db.Set(centroidVecKey(vb), putUint64(uint64(newID))); err != nil {
					return ariesk.Errorf(ariesk.StorageError, err, "indexing merged centroid %d", newID)
				}
			}
			targetID = newID
			ownByKey[key] = targetID

			if params, arr, grid, ok, err := other.LoadBloomGrid(oc.ID); err != nil {
				return err
			} else if ok {
				if err := s.SaveBloomGrid(targetID, params, arr, grid); err != nil {
					return err
				}
			}
		}

		members, err := other.GetClusterMembers(oc.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if _, err := s.AddPoint(oc.Vector, m.Kmer, Provenance{
				ContigID:     m.ContigID,
				ContigOffset: m.ContigOffset,
			}); err != nil {
				return err
			}
		}
	}

	return s.CommitBulkLoad()
}
