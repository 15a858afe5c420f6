// Package types contains the domain model of the pubsub service: node keys,
// subscriber addresses, affiliation and subscription states, node records,
// published items and the error vocabulary shared by the engine and the
// database adapters.
package types

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"
)

// Uid is a database-specific record id, suitable to be used as a primary key.
type Uid uint64

// ZeroUid is a constant representing uninitialized Uid.
var ZeroUid Uid

const (
	uidBase64Unpadded = 11
	uidBase64Padded   = 12
)

// IsZero checks if Uid is uninitialized.
func (uid Uid) IsZero() bool {
	return uid == 0
}

// Compare returns 0 if uid is equal to u2, 1 if u2 is greater than uid, -1 if u2 is smaller.
func (uid Uid) Compare(u2 Uid) int {
	if uid < u2 {
		return -1
	} else if uid > u2 {
		return 1
	}
	return 0
}

// MarshalBinary converts Uid to byte slice.
func (uid Uid) MarshalBinary() ([]byte, error) {
	dst := make([]byte, 8)
	binary.LittleEndian.PutUint64(dst, uint64(uid))
	return dst, nil
}

// UnmarshalBinary reads Uid from byte slice.
func (uid *Uid) UnmarshalBinary(b []byte) error {
	if len(b) < 8 {
		return errors.New("Uid.UnmarshalBinary: invalid length")
	}
	*uid = Uid(binary.LittleEndian.Uint64(b))
	return nil
}

// UnmarshalText reads Uid from base64-encoded string.
func (uid *Uid) UnmarshalText(src []byte) error {
	if len(src) != uidBase64Unpadded {
		return errors.New("Uid.UnmarshalText: invalid length")
	}
	dec := make([]byte, base64.URLEncoding.DecodedLen(uidBase64Padded))
	for len(src) < uidBase64Padded {
		src = append(src, '=')
	}
	count, err := base64.URLEncoding.Decode(dec, src)
	if count < 8 {
		if err != nil {
			return errors.New("Uid.UnmarshalText: failed to decode " + err.Error())
		}
		return errors.New("Uid.UnmarshalText: failed to decode")
	}
	*uid = Uid(binary.LittleEndian.Uint64(dec))
	return nil
}

// MarshalText converts Uid to base64-encoded byte slice.
func (uid Uid) MarshalText() ([]byte, error) {
	if uid == 0 {
		return []byte{}, nil
	}
	src := make([]byte, 8)
	dst := make([]byte, base64.URLEncoding.EncodedLen(8))
	binary.LittleEndian.PutUint64(src, uint64(uid))
	base64.URLEncoding.Encode(dst, src)
	return dst[0:uidBase64Unpadded], nil
}

// String converts Uid to its base64 string representation.
func (uid Uid) String() string {
	buf, _ := uid.MarshalText()
	return string(buf)
}

// ParseUid parses a string which is not prefixed with anything.
func ParseUid(s string) Uid {
	var uid Uid
	uid.UnmarshalText([]byte(s))
	return uid
}

// PrefixId converts Uid to a string prefixed with the given prefix.
func (uid Uid) PrefixId(prefix string) string {
	if uid.IsZero() {
		return ""
	}
	return prefix + uid.String()
}

// NodeKey returns node key as "nde..." string.
func (uid Uid) NodeKey() string {
	return uid.PrefixId("nde")
}

// SubId returns a subscription id as "sub..." string.
func (uid Uid) SubId() string {
	return uid.PrefixId("sub")
}

// ArchiveId returns a stable archive (MAM) id as "arc..." string.
func (uid Uid) ArchiveId() string {
	return uid.PrefixId("arc")
}

// JID is an XMPP address, either bare ("user@domain") or full
// ("user@domain/resource"). The zero value is invalid.
type JID string

// Bare strips the resource part, if any.
func (j JID) Bare() JID {
	if i := strings.IndexByte(string(j), '/'); i >= 0 {
		return j[:i]
	}
	return j
}

// Resource returns the resource part or an empty string for a bare JID.
func (j JID) Resource() string {
	if i := strings.IndexByte(string(j), '/'); i >= 0 {
		return string(j[i+1:])
	}
	return ""
}

// Domain returns the domain part of the address.
func (j JID) Domain() string {
	s := string(j.Bare())
	if i := strings.IndexByte(s, '@'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// WithResource attaches a resource to a bare JID.
func (j JID) WithResource(res string) JID {
	if res == "" {
		return j.Bare()
	}
	return j.Bare() + JID("/"+res)
}

// IsZero checks if the address is empty.
func (j JID) IsZero() bool {
	return j == ""
}

// String returns the string form of the address.
func (j JID) String() string {
	return string(j)
}

// TimeNow returns current wall time in UTC rounded to milliseconds.
func TimeNow() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// ObjHeader is the header shared by all stored objects.
type ObjHeader struct {
	Id        string
	id        Uid
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uid assigns Id field to the internal Uid.
func (h *ObjHeader) Uid() Uid {
	if h.id.IsZero() && h.Id != "" {
		h.id.UnmarshalText([]byte(h.Id))
	}
	return h.id
}

// SetUid assigns given Uid to appropriate fields.
func (h *ObjHeader) SetUid(uid Uid) {
	h.id = uid
	h.Id = uid.String()
}

// InitTimes initializes time.Time variables in the header to current time.
func (h *ObjHeader) InitTimes() {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = TimeNow()
	}
	h.UpdatedAt = h.CreatedAt
}

// Node is the stored node record: metadata and configuration. Affiliations,
// subscriptions and items are stored separately, keyed by the node's Uid.
type Node struct {
	ObjHeader
	// Service which owns the node (bare address of the pubsub component).
	Service JID
	// Node name, unique per service.
	Name string
	// Who created the node.
	Creator JID
	// Current node configuration.
	Config NodeConfig
}

// Item is a payload published to a leaf node. Insert-or-update semantics
// keyed by (node, Id).
type Item struct {
	// Item id, unique within the node. Assigned by the publisher or generated.
	Id string
	// Key of the owning node.
	Node Uid
	// Who published this version of the item.
	Publisher JID
	CreatedAt time.Time
	UpdatedAt time.Time
	// Stable archive (MAM) id for cross-referencing, "arc..." string.
	ArchiveId string
	// Serialized payload.
	Payload string
}

// ItemMeta is the metadata of a stored item without the payload.
type ItemMeta struct {
	Id        string
	Publisher JID
	CreatedAt time.Time
	UpdatedAt time.Time
	ArchiveId string
}

// RosterSubscription is the presence-subscription type of a roster entry.
type RosterSubscription string

// Roster subscription types as defined by the XMPP roster exchange.
const (
	RosterSubNone RosterSubscription = "none"
	RosterSubTo   RosterSubscription = "to"
	RosterSubFrom RosterSubscription = "from"
	RosterSubBoth RosterSubscription = "both"
)

// IsInbound checks if the entry permits the contact to see the owner's presence.
func (rs RosterSubscription) IsInbound() bool {
	return rs == RosterSubFrom || rs == RosterSubBoth
}

// RosterItem is a single roster entry as reported by the roster collaborator.
type RosterItem struct {
	Subscription RosterSubscription
	Groups       []string
}

// StoreError satisfies Error interface but allows constant values for
// direct comparison.
type StoreError string

// Error is required by error interface.
func (s StoreError) Error() string {
	return string(s)
}

const (
	// ErrInternal means DB or other internal failure.
	ErrInternal = StoreError("internal")
	// ErrMalformed means the secret cannot be parsed or otherwise wrong.
	ErrMalformed = StoreError("malformed")
	// ErrFailed means request failed but not because of an internal error.
	ErrFailed = StoreError("failed")
	// ErrDuplicate means duplicate node name or item id, conflicting create.
	ErrDuplicate = StoreError("duplicate value")
	// ErrNotFound means the node or item does not exist.
	ErrNotFound = StoreError("not found")
	// ErrPermissionDenied means the requester is not authorized for the action.
	ErrPermissionDenied = StoreError("denied")
	// ErrUnsupported means the operation is not supported for this node type.
	ErrUnsupported = StoreError("unsupported")
	// ErrPolicy means the request conflicts with the node's configuration.
	ErrPolicy = StoreError("policy")
	// ErrPrecondition means publish-options did not match node configuration.
	ErrPrecondition = StoreError("precondition failed")
)

// Denial sub-reasons reported together with ErrPermissionDenied.
const (
	ReasonForbidden       = "forbidden"
	ReasonClosedNode      = "closed-node"
	ReasonNotSubscribed   = "not-subscribed"
	ReasonPresenceNeeded  = "presence-subscription-required"
	ReasonNotInGroup      = "not-in-roster-group"
	ReasonPendingApproval = "pending-subscription"
)

// AccessError is an access-control denial: a stable (kind, reason) pair.
type AccessError struct {
	Kind   StoreError
	Reason string
}

// Error is required by error interface.
func (e *AccessError) Error() string {
	return string(e.Kind) + ": " + e.Reason
}

// Unwrap makes the denial comparable to its kind with errors.Is.
func (e *AccessError) Unwrap() error {
	return e.Kind
}

// Deny creates a permission-denied error with the given sub-reason.
func Deny(reason string) error {
	return &AccessError{Kind: ErrPermissionDenied, Reason: reason}
}
