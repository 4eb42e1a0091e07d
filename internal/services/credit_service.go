package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/pkg/metrics"
)

// Speaking-rate cost model: 135 words per minute, one credit unit per tenth
// of a second of estimated speech, scaled by the voice's cost multiplier.
const (
	wordsPerSecond   = 135.0 / 60.0
	creditCostFactor = 10
)

var (
	// ErrInsufficientBalance indicates a debit would exceed the ledger balance.
	ErrInsufficientBalance = errors.New("credit service: insufficient balance")
)

// CreditService reads and settles the per-user credit ledger.
type CreditService struct {
	db *gorm.DB
}

// NewCreditService constructs a credit service once a database handle is supplied.
func NewCreditService(db *gorm.DB) (*CreditService, error) {
	if db == nil {
		return nil, errors.New("credit service: db is required")
	}
	return &CreditService{db: db}, nil
}

// Balance returns the user's current credit balance. Missing accounts and
// lookup failures read as zero so the estimate comparison fails closed.
func (s *CreditService) Balance(ctx context.Context, userID string) int64 {
	if s == nil {
		return 0
	}
	ctx = ensuredContext(ctx)

	var account models.CreditAccount
	if err := s.db.WithContext(ctx).
		Take(&account, "user_id = ?", userID).Error; err != nil {
		return 0
	}
	return account.Amount
}

// Account returns the full ledger row for a user.
func (s *CreditService) Account(ctx context.Context, userID string) (*models.CreditAccount, error) {
	if s == nil {
		return nil, errors.New("credit service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	var account models.CreditAccount
	err := s.db.WithContext(ctx).Take(&account, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CreditAccount{UserID: userID, Amount: 0, Plan: models.PlanFree}, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Estimate computes the credit cost for speaking the supplied text with the
// given voice. Empty or whitespace-only text costs nothing.
func (s *CreditService) Estimate(text string, voice *models.Voice) int64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}

	multiplier := 4
	if voice != nil && voice.CostMultiplier > 0 {
		multiplier = voice.CostMultiplier
	}

	seconds := float64(words) / wordsPerSecond
	return int64(math.Ceil(seconds * creditCostFactor * float64(multiplier)))
}

// Debit decrements the user's balance inside a transaction holding a row
// lock, so concurrent settlements against the same account serialise. The
// balance is clamped at zero rather than going negative: the pre-generation
// check already gated on the estimate, and a stale read between check and
// settlement must not corrupt the ledger.
func (s *CreditService) Debit(ctx context.Context, userID string, amount int64) error {
	if s == nil {
		return errors.New("credit service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if amount < 0 {
		amount = -amount
	}
	if amount == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.CreditAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&account, "user_id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}

		account.Amount -= amount
		if account.Amount < 0 {
			account.Amount = 0
		}
		return tx.Save(&account).Error
	})
	if err != nil {
		return err
	}

	metrics.CreditsDebited.Add(float64(amount))
	return nil
}

// Grant adds credits to a user's ledger, creating the account on first use.
// Top-ups from the external billing pipeline enter through here.
func (s *CreditService) Grant(ctx context.Context, userID string, amount int64, plan models.Plan) error {
	if s == nil {
		return errors.New("credit service: service not initialised")
	}
	ctx = ensuredContext(ctx)

	if amount < 0 {
		return errors.New("credit service: grant amount must not be negative")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.CreditAccount
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&account, "user_id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = models.CreditAccount{UserID: userID, Amount: amount, Plan: models.PlanFree}
			if plan != "" {
				account.Plan = plan
			}
			return tx.Create(&account).Error
		}
		if err != nil {
			return err
		}

		account.Amount += amount
		if plan != "" {
			account.Plan = plan
		}
		return tx.Save(&account).Error
	})
}
