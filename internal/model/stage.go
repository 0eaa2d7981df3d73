package model

// Stage is the position of a conversation in the ordering flow.
type Stage string

const (
	StageBrowsing      Stage = "browsing"
	StageSelecting     Stage = "selecting"
	StageCustomizing   Stage = "customizing"
	StageReviewingCart Stage = "reviewing_cart"
	StageCheckout      Stage = "checkout"
	StagePayment       Stage = "payment"
	StageConfirmed     Stage = "confirmed"
)

// IsValid checks if the stage is known.
func (s Stage) IsValid() bool {
	switch s {
	case StageBrowsing, StageSelecting, StageCustomizing, StageReviewingCart,
		StageCheckout, StagePayment, StageConfirmed:
		return true
	}
	return false
}
