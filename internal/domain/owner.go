package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerType tags who a wallet belongs to.
type OwnerType string

const (
	OwnerStudent OwnerType = "STUDENT"
	OwnerPartner OwnerType = "PARTNER"
	OwnerEvent   OwnerType = "EVENT"
	OwnerAdmin   OwnerType = "ADMIN"
)

// Valid reports whether t is one of the four known owner kinds.
func (t OwnerType) Valid() bool {
	switch t {
	case OwnerStudent, OwnerPartner, OwnerEvent, OwnerAdmin:
		return true
	}
	return false
}

// Currency is the unit a wallet is denominated in. The economy runs on a
// single campus coin today, but the wallet key includes the currency so a
// second unit never needs a schema change.
type Currency string

const CurrencyCoin Currency = "COIN"

// OwnerRef identifies a wallet owner. Use NewOwnerRef so an unknown owner
// kind can never reach the ledger.
type OwnerRef struct {
	Type OwnerType
	ID   uuid.UUID
}

func NewOwnerRef(t OwnerType, id uuid.UUID) (OwnerRef, error) {
	if !t.Valid() {
		return OwnerRef{}, fmt.Errorf("%w: %q", ErrUnknownOwnerType, t)
	}
	if id == uuid.Nil {
		return OwnerRef{}, fmt.Errorf("%w: zero owner id", ErrUnknownOwnerType)
	}
	return OwnerRef{Type: t, ID: id}, nil
}

func (o OwnerRef) String() string {
	return fmt.Sprintf("%s/%s", o.Type, o.ID)
}
