package keystore

import "math"

// EpochIndefinite marks an epoch selection that stays valid until the epoch
// key set changes.
const EpochIndefinite uint32 = math.MaxUint32

// EpochState caches the current epoch key selection.
type EpochState struct {
	// LastUsedEpochKeyID is the selected epoch key, or KeyIDNone if unknown.
	LastUsedEpochKeyID KeyID

	// NextEpochKeyStartTime is the time at which the selection must be
	// recomputed, or EpochIndefinite.
	NextEpochKeyStartTime uint32
}

// UnknownEpochState returns the state that forces a fresh selection.
func UnknownEpochState() EpochState {
	return EpochState{
		LastUsedEpochKeyID:    KeyIDNone,
		NextEpochKeyStartTime: EpochIndefinite,
	}
}

// NeedsRefresh reports whether the selection must be recomputed at time now.
func (s EpochState) NeedsRefresh(now uint32) bool {
	return s.LastUsedEpochKeyID == KeyIDNone || now >= s.NextEpochKeyStartTime
}

// EpochKeyInfo is the public part of an epoch key needed for selection.
type EpochKeyInfo struct {
	KeyID     KeyID
	StartTime uint32
}

// SelectCurrentEpochKey picks the epoch key active at time now.
//
// The active key is the one with the greatest start time not after now. If
// now precedes every start time (including now == 0 for an unknown time) the
// oldest key is used. Start times compare as plain unsigned integers and the
// first key wins a tie. The returned state expires at the smallest start time
// greater than the selected key's.
func SelectCurrentEpochKey(now uint32, keys []EpochKeyInfo) (EpochState, error) {
	if len(keys) == 0 {
		return UnknownEpochState(), ErrKeyNotFound
	}

	active, oldest := -1, 0
	for i, k := range keys {
		if k.StartTime < keys[oldest].StartTime {
			oldest = i
		}
		if k.StartTime <= now && (active < 0 || k.StartTime > keys[active].StartTime) {
			active = i
		}
	}
	if active < 0 {
		active = oldest
	}

	selected := keys[active].StartTime
	next := EpochIndefinite
	for _, k := range keys {
		if k.StartTime > selected && k.StartTime < next {
			next = k.StartTime
		}
	}
	return EpochState{
		LastUsedEpochKeyID:    keys[active].KeyID,
		NextEpochKeyStartTime: next,
	}, nil
}
