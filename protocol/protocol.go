// Package protocol defines the wire messages agents exchange over the
// messaging transport: task postings, bids, claims, results, escrow and
// registry notices, reputation queries, and delegation.
//
// The codec is pure: no I/O, no state. Validation never returns errors —
// a message either is well formed or it is not, and callers drop anything
// that is not. The transport gives no delivery guarantees, so there is
// nothing useful to report to a peer about a malformed message anyway.
package protocol

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
)

// Type tags a protocol message on the wire.
type Type string

const (
	TypeTask                 Type = "task"
	TypeClaim                Type = "claim"
	TypeResult               Type = "result"
	TypePayment              Type = "payment"
	TypeAck                  Type = "ack"
	TypeListing              Type = "listing"
	TypeProfile              Type = "profile"
	TypeBid                  Type = "bid"
	TypeBidCounter           Type = "bid_counter"
	TypeBidWithdraw          Type = "bid_withdraw"
	TypeProgress             Type = "progress"
	TypeCancel               Type = "cancel"
	TypeEscrowCreated        Type = "escrow_created"
	TypeEscrowReleased       Type = "escrow_released"
	TypeReputationQuery      Type = "reputation_query"
	TypeReputation           Type = "reputation"
	TypeDeliverableSubmitted Type = "deliverable_submitted"
	TypeVerificationResult   Type = "verification_result"
	TypeCriteriaSet          Type = "criteria_set"
	TypeSubtaskDelegation    Type = "subtask_delegation"
)

// Field size limits. Inbound messages exceeding these are rejected by the
// per-type validators; MaxMessageSize is enforced before parsing so an
// oversized payload never reaches the JSON decoder.
const (
	MaxTitle       = 200
	MaxDescription = 5000
	MaxResult      = 50000
	MaxSkillName   = 50
	MaxSkills      = 20
	MaxID          = 100
	MaxMessageSize = 100000
)

// Message is implemented by every protocol message variant.
type Message interface {
	// MessageType returns the wire type tag.
	MessageType() Type
	// Valid reports whether all required fields are present and within limits.
	Valid() bool
}

var skillNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidSkillName reports whether name is a well-formed skill token:
// alphanumeric, hyphens, underscores, at most MaxSkillName characters.
func ValidSkillName(name string) bool {
	return name != "" && len(name) <= MaxSkillName && skillNameRE.MatchString(name)
}

// ValidSkills reports whether every entry in skills is a valid skill name
// and the list is within MaxSkills. A nil slice is not valid; callers that
// treat skills as optional should check for nil themselves.
func ValidSkills(skills []string) bool {
	if skills == nil || len(skills) > MaxSkills {
		return false
	}
	for _, s := range skills {
		if !ValidSkillName(s) {
			return false
		}
	}
	return true
}

// validID reports whether s is a non-empty identifier within MaxID.
func validID(s string) bool {
	return s != "" && len(s) <= MaxID
}

// validBounded reports whether s fits within max. Empty is allowed; required
// fields check for emptiness separately.
func validBounded(s string, max int) bool {
	return len(s) <= max
}

// validAmount reports whether s parses as a finite, strictly positive number.
func validAmount(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && f > 0
}

// ParseMessage decodes a protocol message from raw transport text. It returns
// nil — never an error — when text is not a protocol message: not valid JSON,
// not an object, missing a string "type" field, carrying an unknown type tag,
// or longer than MaxMessageSize. The size ceiling is checked before any JSON
// work so a hostile peer cannot force large allocations.
//
// A non-nil result only means the envelope decoded; callers still consult
// Valid before acting on it.
func ParseMessage(text string) Message {
	if len(text) > MaxMessageSize {
		return nil
	}
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil || probe.Type == "" {
		return nil
	}

	var msg Message
	switch probe.Type {
	case TypeTask:
		msg = &Task{}
	case TypeClaim:
		msg = &Claim{}
	case TypeResult:
		msg = &Result{}
	case TypePayment:
		msg = &Payment{}
	case TypeAck:
		msg = &Ack{}
	case TypeListing:
		msg = &Listing{}
	case TypeProfile:
		msg = &Profile{}
	case TypeBid:
		msg = &Bid{}
	case TypeBidCounter:
		msg = &BidCounter{}
	case TypeBidWithdraw:
		msg = &BidWithdraw{}
	case TypeProgress:
		msg = &Progress{}
	case TypeCancel:
		msg = &Cancel{}
	case TypeEscrowCreated:
		msg = &EscrowCreated{}
	case TypeEscrowReleased:
		msg = &EscrowReleased{}
	case TypeReputationQuery:
		msg = &ReputationQuery{}
	case TypeReputation:
		msg = &Reputation{}
	case TypeDeliverableSubmitted:
		msg = &DeliverableSubmitted{}
	case TypeVerificationResult:
		msg = &VerificationResult{}
	case TypeCriteriaSet:
		msg = &CriteriaSet{}
	case TypeSubtaskDelegation:
		msg = &SubtaskDelegation{}
	default:
		return nil
	}

	if err := json.Unmarshal([]byte(text), msg); err != nil {
		return nil
	}
	return msg
}

// Serialize encodes a protocol message to its wire form.
func Serialize(m Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
