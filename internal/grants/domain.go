package grants

import (
	"errors"
	"time"
)

// Via enumerates the mechanisms through which a sub-role can be acquired.
type Via string

const (
	// ViaProductPurchase marks grants triggered by an approved purchase.
	ViaProductPurchase Via = "product_purchase"
	// ViaInitiationCompleted marks grants triggered by a successful initiation.
	ViaInitiationCompleted Via = "initiation_completed"
	// ViaManual marks grants recorded directly by an administrator.
	ViaManual Via = "manual"
)

// Valid reports whether the mechanism tag is recognized.
func (v Via) Valid() bool {
	switch v {
	case ViaProductPurchase, ViaInitiationCompleted, ViaManual:
		return true
	}
	return false
}

// SourceKind discriminates the entity kinds a grant can originate from.
type SourceKind string

const (
	// SourceNone is used for manual grants with no originating entity.
	SourceNone SourceKind = ""
	// SourceProduct points at the purchased product.
	SourceProduct SourceKind = "product"
	// SourceInitiation points at the initiation record.
	SourceInitiation SourceKind = "initiation"
)

// SourceRef is a tagged reference to whatever caused a grant. The explicit
// kind discriminant keeps source handling an exhaustive switch instead of
// runtime type inspection.
type SourceRef struct {
	Kind SourceKind
	ID   int64
}

// NoSource returns the empty reference used for manual grants.
func NoSource() SourceRef {
	return SourceRef{}
}

// ProductSource references a product entity.
func ProductSource(id int64) SourceRef {
	return SourceRef{Kind: SourceProduct, ID: id}
}

// InitiationSource references an initiation record.
func InitiationSource(id int64) SourceRef {
	return SourceRef{Kind: SourceInitiation, ID: id}
}

// Grant is one ledger row: user X acquired sub-role Y, sourced from Z, via
// mechanism M, granted by actor A. Rows are never mutated after insert;
// revocation is a soft flag retained for audit.
type Grant struct {
	ID        int64
	UserID    int64
	SubRoleID int64
	Source    SourceRef
	Via       Via
	GrantedBy *int64
	GrantedAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

var (
	// ErrUnknownVia rejects unrecognized mechanism tags.
	ErrUnknownVia = errors.New("grants: unknown grant mechanism")
	// ErrInvalidProvenance rejects a source whose kind does not match the
	// mechanism tag.
	ErrInvalidProvenance = errors.New("grants: source does not match mechanism")
)

// requiredSourceKind maps each mechanism to the source kind it implies.
func requiredSourceKind(via Via) (SourceKind, error) {
	switch via {
	case ViaProductPurchase:
		return SourceProduct, nil
	case ViaInitiationCompleted:
		return SourceInitiation, nil
	case ViaManual:
		return SourceNone, nil
	default:
		return SourceNone, ErrUnknownVia
	}
}
