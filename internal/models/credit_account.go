package models

// Plan names the billing tier attached to a credit account.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPaid Plan = "paid"
)

// CreditAccount is the per-user credit ledger. The balance is mutated only
// by settlement debits and external top-up events; the generation path reads
// it but never writes it directly.
type CreditAccount struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Amount int64  `gorm:"not null;default:0" json:"amount"`
	Plan   Plan   `gorm:"type:varchar(16);not null;default:free" json:"plan"`
}
