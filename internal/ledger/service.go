package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultCreditDescription = "Credit"
	defaultDebitDescription  = "Purchase"
	overviewLatestLimit      = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service maintains per-user balances and their append-only history.
type Service interface {
	// WithTx binds every write to the caller's transaction.
	WithTx(tx *gorm.DB) Service
	OpenAccount(ctx context.Context, userID uuid.UUID, opening decimal.Decimal) (*models.Account, error)
	Credit(ctx context.Context, input EntryInput) (decimal.Decimal, error)
	Debit(ctx context.Context, input EntryInput) (bool, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
	Overview(ctx context.Context) (*Overview, error)
}

// EntryInput describes one balance mutation.
type EntryInput struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	OrderID     *uuid.UUID
}

// TransactionPage is a cursor page of ledger history.
type TransactionPage struct {
	Transactions []models.LedgerTransaction `json:"transactions"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}

// Overview summarizes the currency supply for administrators.
type Overview struct {
	Circulating      decimal.Decimal            `json:"circulating"`
	AccountCount     int64                      `json:"account_count"`
	TransactionCount int64                      `json:"transaction_count"`
	Latest           []models.LedgerTransaction `json:"latest"`
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Logger  *logger.Logger
	Metrics *metrics.MarketplaceMetrics
}

type service struct {
	repo    Repository
	tx      txRunner
	bound   bool
	logg    *logger.Logger
	metrics *metrics.MarketplaceMetrics
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{
		repo:    s.repo.WithTx(tx),
		tx:      s.tx,
		bound:   true,
		logg:    s.logg,
		metrics: s.metrics,
	}
}

// run executes fn atomically, joining the bound transaction when present.
func (s *service) run(ctx context.Context, fn func(repo Repository) error) error {
	if s.bound {
		return fn(s.repo)
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.repo.WithTx(tx))
	})
}

// OpenAccount creates the user's account with its opening grant exactly once.
// Repeated calls return the existing account untouched.
func (s *service) OpenAccount(ctx context.Context, userID uuid.UUID, opening decimal.Decimal) (*models.Account, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if opening.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opening balance must not be negative")
	}

	var account *models.Account
	err := s.run(ctx, func(repo Repository) error {
		acct, created, err := repo.EnsureAccount(ctx, userID, opening)
		if err != nil {
			return err
		}
		account = acct
		if !created || !opening.IsPositive() {
			return nil
		}
		return repo.CreateTransaction(ctx, &models.LedgerTransaction{
			UserID:      userID,
			Amount:      opening,
			Kind:        enums.TransactionKindCredit,
			Description: "Opening balance",
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open ledger account")
	}
	return account, nil
}

// Credit always succeeds for a valid amount and returns the new balance.
func (s *service) Credit(ctx context.Context, input EntryInput) (decimal.Decimal, error) {
	if err := validateEntry(input); err != nil {
		return decimal.Zero, err
	}
	description := describe(input.Description, defaultCreditDescription)

	var balance decimal.Decimal
	err := s.run(ctx, func(repo Repository) error {
		ok, err := repo.AddToBalance(ctx, input.UserID, input.Amount)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.recoverMissingAccount(ctx, repo, input.UserID); err != nil {
				return err
			}
			if ok, err = repo.AddToBalance(ctx, input.UserID, input.Amount); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("account for user %s vanished during credit", input.UserID)
			}
		}
		if err := repo.CreateTransaction(ctx, &models.LedgerTransaction{
			UserID:      input.UserID,
			Amount:      input.Amount,
			Kind:        enums.TransactionKindCredit,
			Description: description,
			OrderID:     input.OrderID,
		}); err != nil {
			return err
		}
		account, err := repo.FindAccount(ctx, input.UserID)
		if err != nil {
			return err
		}
		balance = account.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit account")
	}
	s.metrics.IncCredit()
	return balance, nil
}

// Debit reports false without touching state when the balance does not cover
// the amount. Insufficient funds is an outcome, not an error.
func (s *service) Debit(ctx context.Context, input EntryInput) (bool, error) {
	if err := validateEntry(input); err != nil {
		return false, err
	}
	description := describe(input.Description, defaultDebitDescription)

	var debited bool
	err := s.run(ctx, func(repo Repository) error {
		ok, err := repo.SubtractIfCovered(ctx, input.UserID, input.Amount)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := repo.FindAccount(ctx, input.UserID); errors.Is(err, gorm.ErrRecordNotFound) {
				return s.recoverMissingAccount(ctx, repo, input.UserID)
			} else if err != nil {
				return err
			}
			return nil
		}
		debited = true
		return repo.CreateTransaction(ctx, &models.LedgerTransaction{
			UserID:      input.UserID,
			Amount:      input.Amount,
			Kind:        enums.TransactionKindDebit,
			Description: description,
			OrderID:     input.OrderID,
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit account")
	}
	if debited {
		s.metrics.ObserveDebit("ok")
	} else {
		s.metrics.ObserveDebit("insufficient_funds")
	}
	return debited, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	if userID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	account, err := s.repo.FindAccount(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account, err = s.ensureZeroAccount(ctx, userID)
	}
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account.Balance, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page, next := pagination.Trim(rows, params.Limit, func(t models.LedgerTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return &TransactionPage{Transactions: page, NextCursor: next}, nil
}

func (s *service) Overview(ctx context.Context) (*Overview, error) {
	totals, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate ledger")
	}
	latest, err := s.repo.LatestTransactions(ctx, overviewLatestLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest transactions")
	}
	return &Overview{
		Circulating:      totals.Circulating,
		AccountCount:     totals.AccountCount,
		TransactionCount: totals.TransactionCount,
		Latest:           latest,
	}, nil
}

// recoverMissingAccount handles a user without an account. Accounts are opened
// at registration, so reaching this path means the data needs a look.
func (s *service) recoverMissingAccount(ctx context.Context, repo Repository, userID uuid.UUID) error {
	s.logg.Warn(s.logg.WithUserID(ctx, userID.String()), "ledger account missing; opening zero-balance account")
	_, _, err := repo.EnsureAccount(ctx, userID, decimal.Zero)
	return err
}

func (s *service) ensureZeroAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var account *models.Account
	err := s.run(ctx, func(repo Repository) error {
		if err := s.recoverMissingAccount(ctx, repo, userID); err != nil {
			return err
		}
		acct, err := repo.FindAccount(ctx, userID)
		account = acct
		return err
	})
	return account, err
}

func validateEntry(input EntryInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	return nil
}

func describe(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
