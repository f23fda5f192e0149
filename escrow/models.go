package escrow

import (
	"encoding/hex"
	"fmt"
)

const (
	// MaxMilestonesPerAgreement bounds the milestone list fixed at creation.
	MaxMilestonesPerAgreement = 10
	// DefaultMaxAgreements is the registry capacity used by NewEngine unless
	// overridden; the bound is a protocol invariant, not a sizing hint.
	DefaultMaxAgreements = 10000
	// RefundTimeoutTicks is added to the funding tick to compute the earliest
	// tick at which the payer may reclaim locked funds.
	RefundTimeoutTicks = 1_000_000

	// FeeDivisor sets the protocol fee as an integer division of each
	// released milestone amount: fee = amount / FeeDivisor, floored.
	FeeDivisor = 200

	agreementIDPrefix uint64 = 0x50524E58

	maxTitleLen       = 255
	maxMetadataLen    = 512
	maxDescriptionLen = 128
)

// AgreementID identifies one agreement for its full lifetime. The zero value
// is never assigned and is universally invalid.
type AgreementID uint64

// AddressLen is the fixed width of vault addresses.
const AddressLen = 64

// Address is an opaque account identity. The empty sentinel has a zero first
// byte; anything else is considered a valid address.
type Address [AddressLen]byte

// AddressFromString builds an Address from its textual form. The text must be
// non-empty and at most AddressLen bytes; shorter values are zero padded.
func AddressFromString(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, fmt.Errorf("escrow: empty address")
	}
	if len(s) > AddressLen {
		return a, fmt.Errorf("escrow: address longer than %d bytes", AddressLen)
	}
	copy(a[:], s)
	return a, nil
}

// IsValid reports whether the address is non-empty.
func (a Address) IsValid() bool {
	return a[0] != 0
}

func (a Address) String() string {
	end := len(a)
	for end > 0 && a[end-1] == 0 {
		end--
	}
	return string(a[:end])
}

// EvidenceDigestLen is the fixed width of milestone evidence fingerprints,
// sized for a BLAKE2b-512 digest.
const EvidenceDigestLen = 64

// EvidenceDigest is the opaque fingerprint recorded when a milestone is
// verified. The zero value means no evidence has been recorded.
type EvidenceDigest [EvidenceDigestLen]byte

// EvidenceDigestFromHex decodes a 128-character hex fingerprint.
func EvidenceDigestFromHex(s string) (EvidenceDigest, error) {
	var d EvidenceDigest
	if len(s) != EvidenceDigestLen*2 {
		return d, fmt.Errorf("escrow: evidence digest must be %d hex characters", EvidenceDigestLen*2)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("escrow: decode evidence digest: %w", err)
	}
	return d, nil
}

// IsZero reports whether no evidence has been recorded.
func (d EvidenceDigest) IsZero() bool {
	return d == EvidenceDigest{}
}

func (d EvidenceDigest) String() string {
	return hex.EncodeToString(d[:])
}

// AgreementState enumerates the agreement lifecycle.
type AgreementState uint8

const (
	AgreementCreated AgreementState = iota
	AgreementFunded
	AgreementActive
	AgreementCompleted
	AgreementRefunded
	// AgreementDisputed is reserved for future arbitration. No transition in
	// this engine enters or leaves it.
	AgreementDisputed
)

func (s AgreementState) String() string {
	switch s {
	case AgreementCreated:
		return "CREATED"
	case AgreementFunded:
		return "FUNDED"
	case AgreementActive:
		return "ACTIVE"
	case AgreementCompleted:
		return "COMPLETED"
	case AgreementRefunded:
		return "REFUNDED"
	case AgreementDisputed:
		return "DISPUTED"
	default:
		return fmt.Sprintf("AgreementState(%d)", uint8(s))
	}
}

// MilestoneState enumerates the milestone lifecycle.
type MilestoneState uint8

const (
	MilestonePending MilestoneState = iota
	MilestoneVerified
	MilestoneReleased
	MilestoneCancelled
)

func (s MilestoneState) String() string {
	switch s {
	case MilestonePending:
		return "PENDING"
	case MilestoneVerified:
		return "VERIFIED"
	case MilestoneReleased:
		return "RELEASED"
	case MilestoneCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("MilestoneState(%d)", uint8(s))
	}
}

// Milestone is one funded deliverable inside an agreement. Ordinals are
// 1-based and unique within their agreement; amount and ordinal are fixed at
// creation.
type Milestone struct {
	Ordinal     int
	Amount      uint64
	State       MilestoneState
	VerifiedAt  uint64
	ReleasedAt  uint64
	Description string
	Evidence    EvidenceDigest
}

// Agreement is one escrow contract between a payer and a beneficiary,
// overseen by an oracle authority. Records live in the Registry for the
// process lifetime and are only ever transitioned, never deleted.
type Agreement struct {
	ID             AgreementID
	Payer          Address
	Beneficiary    Address
	Oracle         Address
	TotalAmount    uint64
	LockedAmount   uint64
	ReleasedAmount uint64
	State          AgreementState
	CreatedAt      uint64
	FundedAt       uint64
	TimeoutAt      uint64
	Title          string
	Metadata       string
	Milestones     []Milestone

	eventSeq uint64
}

func (a *Agreement) milestone(ordinal int) (*Milestone, bool) {
	if ordinal < 1 || ordinal > len(a.Milestones) {
		return nil, false
	}
	return &a.Milestones[ordinal-1], true
}

func (a *Agreement) allMilestonesReleased() bool {
	for i := range a.Milestones {
		if a.Milestones[i].State != MilestoneReleased {
			return false
		}
	}
	return true
}

func (a *Agreement) nextEventSeq() uint64 {
	a.eventSeq++
	return a.eventSeq
}

func clampString(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
