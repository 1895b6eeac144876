package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrInvalidAccountType flags an unknown CoA category.
var ErrInvalidAccountType = fmt.Errorf("%w: unknown account type", shared.ErrValidation)

// ErrSystemAccountImmutable protects auto-created control accounts.
var ErrSystemAccountImmutable = fmt.Errorf("%w: system accounts cannot be archived", shared.ErrBusinessRule)

// Service owns chart-of-accounts reads and writes for a business.
type Service struct {
	repo   *Repository
	cache  *Cache
	logger *slog.Logger
}

func NewService(repo *Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// WithCache attaches a Redis balance cache. A nil cache stays a no-op.
func (s *Service) WithCache(cache *Cache) {
	s.cache = cache
}

// CreateInput carries validated fields for a new account.
type CreateInput struct {
	Code       string
	Name       string
	Type       AccountType
	IsCashBank bool
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return fmt.Errorf("%w: account code required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: account name required", shared.ErrValidation)
	}
	switch in.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return nil
	default:
		return ErrInvalidAccountType
	}
}

// Create inserts a new account. Duplicate codes are permitted but logged:
// the uniqueness gap is a known latent issue, surfaced to operators rather
// than silently replicated or silently fixed.
func (s *Service) Create(ctx context.Context, authz shared.AuthorizationContext, in CreateInput) (Account, error) {
	if err := authz.Validate(); err != nil {
		return Account{}, fmt.Errorf("%w: %s", shared.ErrValidation, err)
	}
	if err := in.validate(); err != nil {
		return Account{}, err
	}
	existing, err := s.repo.CountByCode(ctx, authz.BusinessID, in.Code)
	if err != nil {
		return Account{}, err
	}
	if existing > 0 && s.logger != nil {
		s.logger.Warn("duplicate account code",
			slog.Int64("business_id", authz.BusinessID),
			slog.String("code", in.Code))
	}
	return s.repo.Insert(ctx, Account{
		BusinessID: authz.BusinessID,
		Code:       strings.TrimSpace(in.Code),
		Name:       strings.TrimSpace(in.Name),
		Type:       in.Type,
		IsCashBank: in.IsCashBank,
		IsActive:   true,
	})
}

func (s *Service) Get(ctx context.Context, authz shared.AuthorizationContext, id int64) (Account, error) {
	return s.repo.Get(ctx, authz.BusinessID, id)
}

func (s *Service) ListByType(ctx context.Context, authz shared.AuthorizationContext, accountType AccountType) ([]Account, error) {
	return s.repo.ListByType(ctx, authz.BusinessID, accountType)
}

func (s *Service) List(ctx context.Context, authz shared.AuthorizationContext) ([]Account, error) {
	return s.repo.List(ctx, authz.BusinessID)
}

// Balance computes the signed balance: debit-natured types (Asset, Expense)
// report debits minus credits, all others credits minus debits. Results are
// served from the versioned cache when one is attached; a cache failure
// falls through to the database rather than failing the read.
func (s *Service) Balance(ctx context.Context, authz shared.AuthorizationContext, accountID int64, q BalanceQuery) (decimal.Decimal, error) {
	account, err := s.repo.Get(ctx, authz.BusinessID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if s.cache != nil {
		if balance, err := s.cachedBalance(ctx, account, q); err == nil {
			return balance, nil
		} else if s.logger != nil {
			s.logger.Warn("balance cache miss path failed",
				slog.Int64("account_id", accountID),
				slog.Any("error", err))
		}
	}
	return s.balanceFromDB(ctx, account, q)
}

func (s *Service) balanceFromDB(ctx context.Context, account Account, q BalanceQuery) (decimal.Decimal, error) {
	debit, credit, err := s.repo.Sums(ctx, account.BusinessID, account.ID, q)
	if err != nil {
		return decimal.Zero, err
	}
	return SignedBalance(account.Type, debit, credit), nil
}

func (s *Service) cachedBalance(ctx context.Context, account Account, q BalanceQuery) (decimal.Decimal, error) {
	key, err := s.cache.BuildKey(ctx, keyBalance(account.BusinessID, account.ID, q))
	if err != nil {
		return decimal.Zero, err
	}
	var raw string
	err = s.cache.FetchJSON(ctx, key, &raw, func(ctx context.Context) (interface{}, error) {
		balance, err := s.balanceFromDB(ctx, account, q)
		if err != nil {
			return nil, err
		}
		return balance.String(), nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// EnsureSystemAccount resolves or creates the business's system account.
func (s *Service) EnsureSystemAccount(ctx context.Context, authz shared.AuthorizationContext, kind SystemAccountKind) (Account, error) {
	var account Account
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var e error
		account, e = EnsureSystemAccountTx(ctx, tx, authz.BusinessID, kind)
		return e
	})
	return account, err
}

// Archive is the single explicit archival operation: the account is deleted
// outright when nothing ever posted against it, otherwise deactivated so
// history stays intact.
func (s *Service) Archive(ctx context.Context, authz shared.AuthorizationContext, accountID int64) error {
	account, err := s.repo.Get(ctx, authz.BusinessID, accountID)
	if err != nil {
		return err
	}
	if account.IsSystemAccount {
		return ErrSystemAccountImmutable
	}
	used, err := s.repo.HasLedgerEntries(ctx, authz.BusinessID, accountID)
	if err != nil {
		return err
	}
	if used {
		return s.repo.Deactivate(ctx, authz.BusinessID, accountID)
	}
	return s.repo.Delete(ctx, authz.BusinessID, accountID)
}

// SignedBalance applies the sign convention for a raw debit/credit pair.
func SignedBalance(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNatured() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
