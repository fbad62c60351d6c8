package vault

import "fmt"

// Kind is one of the four vault operations.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindMint     Kind = "mint"
	KindRedeem   Kind = "redeem"
	KindWithdraw Kind = "withdraw"
)

// Kinds lists every operation kind in display order.
var Kinds = []Kind{KindDeposit, KindMint, KindRedeem, KindWithdraw}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDeposit, KindMint, KindRedeem, KindWithdraw:
		return k, nil
	}
	return "", fmt.Errorf("unknown operation kind: %q", s)
}

// NeedsApproval reports whether the kind pulls underlying tokens from the
// account and so requires an allowance first.
func (k Kind) NeedsApproval() bool {
	return k == KindDeposit || k == KindMint
}

// PreviewMethod is the vault simulation call for this kind.
func (k Kind) PreviewMethod() string {
	switch k {
	case KindDeposit:
		return MethodPreviewDeposit
	case KindMint:
		return MethodPreviewMint
	case KindRedeem:
		return MethodPreviewRedeem
	case KindWithdraw:
		return MethodPreviewWithdraw
	}
	return ""
}

// InputUnit is the unit the user types for this kind.
func (k Kind) InputUnit() Unit {
	if k == KindMint || k == KindRedeem {
		return UnitShares
	}
	return UnitAssets
}

// OutputUnit is the unit of the preview result.
func (k Kind) OutputUnit() Unit {
	if k.InputUnit() == UnitShares {
		return UnitAssets
	}
	return UnitShares
}

// Unit distinguishes underlying-token amounts from vault share amounts.
type Unit string

const (
	UnitAssets Unit = "assets"
	UnitShares Unit = "shares"
)
