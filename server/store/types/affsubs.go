package types

import (
	"errors"
	"sync"
)

// Affiliation is a subscriber's administrative role on a node.
type Affiliation int

// Affiliation values, ordered by weight: when several grants could apply,
// the most privileged wins.
const (
	AffNone Affiliation = iota
	AffOutcast
	AffMember
	AffPublisher
	AffOwner
)

var affiliationNames = map[Affiliation]string{
	AffNone:      "none",
	AffOutcast:   "outcast",
	AffMember:    "member",
	AffPublisher: "publisher",
	AffOwner:     "owner",
}

// Weight returns the privilege order of the affiliation. Outcast weighs
// less than none: a ban outranks nothing but never wins a privilege contest.
func (a Affiliation) Weight() int {
	switch a {
	case AffOutcast:
		return -1
	case AffNone:
		return 0
	case AffMember:
		return 1
	case AffPublisher:
		return 2
	case AffOwner:
		return 3
	}
	return 0
}

// MayPublish checks if the affiliation alone permits publishing items.
func (a Affiliation) MayPublish() bool {
	return a == AffOwner || a == AffPublisher
}

// MayRetrieve checks if the affiliation permits subscribing and item retrieval.
func (a Affiliation) MayRetrieve() bool {
	return a == AffOwner || a == AffPublisher || a == AffMember
}

// MayManage checks if the affiliation permits node management.
func (a Affiliation) MayManage() bool {
	return a == AffOwner
}

// String returns the XEP-0060 name of the affiliation.
func (a Affiliation) String() string {
	return affiliationNames[a]
}

// MarshalText converts Affiliation to a byte slice of its name.
func (a Affiliation) MarshalText() ([]byte, error) {
	if name, ok := affiliationNames[a]; ok {
		return []byte(name), nil
	}
	return nil, errors.New("invalid affiliation")
}

// UnmarshalText parses an affiliation name.
func (a *Affiliation) UnmarshalText(b []byte) error {
	for val, name := range affiliationNames {
		if name == string(b) {
			*a = val
			return nil
		}
	}
	return errors.New("unknown affiliation '" + string(b) + "'")
}

// Subscription is a subscriber's notification-receiving state on a node.
type Subscription int

// Subscription values.
const (
	SubNone Subscription = iota
	SubPending
	SubUnconfigured
	SubSubscribed
)

var subscriptionNames = map[Subscription]string{
	SubNone:         "none",
	SubPending:      "pending",
	SubUnconfigured: "unconfigured",
	SubSubscribed:   "subscribed",
}

// String returns the XEP-0060 name of the subscription state.
func (s Subscription) String() string {
	return subscriptionNames[s]
}

// MarshalText converts Subscription to a byte slice of its name.
func (s Subscription) MarshalText() ([]byte, error) {
	if name, ok := subscriptionNames[s]; ok {
		return []byte(name), nil
	}
	return nil, errors.New("invalid subscription")
}

// UnmarshalText parses a subscription state name.
func (s *Subscription) UnmarshalText(b []byte) error {
	for val, name := range subscriptionNames {
		if name == string(b) {
			*s = val
			return nil
		}
	}
	return errors.New("unknown subscription '" + string(b) + "'")
}

// SubState is the full subscription record of one subscriber: the state plus
// the server-assigned subscription id which disambiguates repeat requests and
// validates unsubscribe/approve calls.
type SubState struct {
	Sub Subscription
	// Opaque "sub..." id, stable per subscriber per node.
	Id string
}

// AffiliationSet maps bare subscriber addresses to affiliations. Absent
// entries read as AffNone; entries merging to AffNone are removed, so only
// non-default grants are kept or persisted.
//
// Mutations accumulate in a pending overlay which becomes the visible base
// only at Merge. Readers of Get see the last-merged snapshot; Values unions
// base and pending so same-request logic observes in-flight changes.
type AffiliationSet struct {
	mu      sync.RWMutex
	base    map[JID]Affiliation
	pending map[JID]Affiliation
}

// NewAffiliationSet creates a set prefilled with the given base map. The map
// is owned by the set afterwards.
func NewAffiliationSet(base map[JID]Affiliation) *AffiliationSet {
	if base == nil {
		base = make(map[JID]Affiliation)
	}
	return &AffiliationSet{base: base}
}

// Get returns the last-merged affiliation of the given address, AffNone if absent.
func (s *AffiliationSet) Get(j JID) Affiliation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base[j.Bare()]
}

// Add records a new grant in the pending overlay. Same as Change.
func (s *AffiliationSet) Add(j JID, aff Affiliation) {
	s.Change(j, aff)
}

// Change records a changed grant in the pending overlay.
func (s *AffiliationSet) Change(j JID, aff Affiliation) {
	s.mu.Lock()
	if s.pending == nil {
		s.pending = make(map[JID]Affiliation)
	}
	s.pending[j.Bare()] = aff
	s.mu.Unlock()
}

// Raise records the given grant only if it outweighs the currently visible
// one. Used when recalculating the affiliation of a subscribing entity so an
// existing owner is never downgraded.
func (s *AffiliationSet) Raise(j JID, aff Affiliation) {
	j = j.Bare()
	s.mu.Lock()
	cur, ok := s.pending[j]
	if !ok {
		cur = s.base[j]
	}
	if aff.Weight() > cur.Weight() {
		if s.pending == nil {
			s.pending = make(map[JID]Affiliation)
		}
		s.pending[j] = aff
	}
	s.mu.Unlock()
}

// IsChanged checks if the set has unmerged pending changes.
func (s *AffiliationSet) IsChanged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) > 0
}

// Changed returns a copy of the pending overlay for the writer to persist.
func (s *AffiliationSet) Changed() map[JID]Affiliation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[JID]Affiliation, len(s.pending))
	for j, aff := range s.pending {
		out[j] = aff
	}
	return out
}

// Merge folds the written snapshot into the base map. An overlay entry is
// cleared only while it still matches the snapshot; an entry changed again
// after the snapshot was taken stays pending for the next flush. Entries
// whose written state is AffNone are removed entirely.
func (s *AffiliationSet) Merge(written map[JID]Affiliation) {
	s.mu.Lock()
	for j, aff := range written {
		if aff == AffNone {
			delete(s.base, j)
		} else {
			s.base[j] = aff
		}
		if cur, ok := s.pending[j]; ok && cur == aff {
			delete(s.pending, j)
		}
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	s.mu.Unlock()
}

// ResetPending drops the failed snapshot from the overlay, reverting those
// entries to the last-merged state. Entries changed again after the snapshot
// was taken are kept for the next flush.
func (s *AffiliationSet) ResetPending(failed map[JID]Affiliation) {
	s.mu.Lock()
	for j, aff := range failed {
		if cur, ok := s.pending[j]; ok && cur == aff {
			delete(s.pending, j)
		}
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	s.mu.Unlock()
}

// Values returns the union of base and pending so in-flight changes are
// visible to same-transaction logic before Merge. AffNone entries are elided.
func (s *AffiliationSet) Values() map[JID]Affiliation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[JID]Affiliation, len(s.base)+len(s.pending))
	for j, aff := range s.base {
		out[j] = aff
	}
	for j, aff := range s.pending {
		if aff == AffNone {
			delete(out, j)
		} else {
			out[j] = aff
		}
	}
	return out
}

// SubscriptionSet maps bare subscriber addresses to subscription records,
// with the same pending-then-merge discipline as AffiliationSet.
type SubscriptionSet struct {
	mu      sync.RWMutex
	base    map[JID]SubState
	pending map[JID]SubState
}

// NewSubscriptionSet creates a set prefilled with the given base map. The map
// is owned by the set afterwards.
func NewSubscriptionSet(base map[JID]SubState) *SubscriptionSet {
	if base == nil {
		base = make(map[JID]SubState)
	}
	return &SubscriptionSet{base: base}
}

// Get returns the last-merged subscription record, zero SubState if absent.
func (s *SubscriptionSet) Get(j JID) SubState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base[j.Bare()]
}

// Add records a new subscription in the pending overlay. Same as Change.
func (s *SubscriptionSet) Add(j JID, st SubState) {
	s.Change(j, st)
}

// Change records a changed subscription in the pending overlay. Changing to
// SubNone keeps the record's id so the removal can be persisted by id.
func (s *SubscriptionSet) Change(j JID, st SubState) {
	j = j.Bare()
	s.mu.Lock()
	if st.Id == "" {
		if prev, ok := s.pending[j]; ok {
			st.Id = prev.Id
		} else {
			st.Id = s.base[j].Id
		}
	}
	if s.pending == nil {
		s.pending = make(map[JID]SubState)
	}
	s.pending[j] = st
	s.mu.Unlock()
}

// IsChanged checks if the set has unmerged pending changes.
func (s *SubscriptionSet) IsChanged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending) > 0
}

// Changed returns a copy of the pending overlay for the writer to persist.
// SubNone entries represent removals.
func (s *SubscriptionSet) Changed() map[JID]SubState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[JID]SubState, len(s.pending))
	for j, st := range s.pending {
		out[j] = st
	}
	return out
}

// Merge folds the written snapshot into the base map. An overlay entry is
// cleared only while it still matches the snapshot; an entry changed again
// after the snapshot was taken stays pending for the next flush. Entries
// whose written state is SubNone are removed entirely.
func (s *SubscriptionSet) Merge(written map[JID]SubState) {
	s.mu.Lock()
	for j, st := range written {
		if st.Sub == SubNone {
			delete(s.base, j)
		} else {
			s.base[j] = st
		}
		if cur, ok := s.pending[j]; ok && cur == st {
			delete(s.pending, j)
		}
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	s.mu.Unlock()
}

// ResetPending drops the failed snapshot from the overlay, reverting those
// entries to the last-merged state. Entries changed again after the snapshot
// was taken are kept for the next flush.
func (s *SubscriptionSet) ResetPending(failed map[JID]SubState) {
	s.mu.Lock()
	for j, st := range failed {
		if cur, ok := s.pending[j]; ok && cur == st {
			delete(s.pending, j)
		}
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	s.mu.Unlock()
}

// Values returns the union of base and pending so in-flight changes are
// visible to same-transaction logic before Merge. SubNone entries are elided.
func (s *SubscriptionSet) Values() map[JID]SubState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[JID]SubState, len(s.base)+len(s.pending))
	for j, st := range s.base {
		out[j] = st
	}
	for j, st := range s.pending {
		if st.Sub == SubNone {
			delete(out, j)
		} else {
			out[j] = st
		}
	}
	return out
}
