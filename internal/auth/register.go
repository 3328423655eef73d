package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// RegisterService handles the onboarding transaction.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB             txRunner
	Ledger         ledger.Service
	Outbox         outbox.Emitter
	Logger         *logger.Logger
	PasswordConfig config.PasswordConfig
	Wallet         config.WalletConfig
}

type registerService struct {
	db          txRunner
	ledger      ledger.Service
	outbox      outbox.Emitter
	logg        *logger.Logger
	passwordCfg config.PasswordConfig
	opening     decimal.Decimal
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	opening, err := params.Wallet.OpeningBalance()
	if err != nil {
		return nil, err
	}
	return &registerService{
		db:          params.DB,
		ledger:      params.Ledger,
		outbox:      params.Outbox,
		logg:        params.Logger,
		passwordCfg: params.PasswordConfig,
		opening:     opening,
	}, nil
}

// Register creates the user, opens their wallet with the starting grant and
// queues user_registered. All three commit together.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if len(username) < 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username must be at least 3 characters")
	}
	role := req.Role
	if role == "" {
		role = enums.RoleBuyer
	}
	if role != enums.RoleBuyer && role != enums.RoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role must be buyer or vendor")
	}
	if err := security.ValidatePassword(req.Password, username, email); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	passwordHash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.User
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		if _, err := userRepo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check user email")
		}
		if _, err := userRepo.FindByUsername(ctx, username); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check username")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			Username:     username,
			PasswordHash: passwordHash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         role,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email or username already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}

		if _, err := s.ledger.WithTx(tx).OpenAccount(ctx, user.ID, s.opening); err != nil {
			return err
		}
		if user.Role == enums.RoleVendor {
			if _, err := product.NewRepository(tx).EnsureVendor(ctx, user.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open storefront")
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Actor:         outbox.ActorFrom(types.Actor{UserID: user.ID, Role: user.Role}),
			Data: payloads.UserRegisteredEvent{
				UserID:         user.ID,
				Email:          user.Email,
				Role:           user.Role,
				OpeningBalance: s.opening,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit user registered")
		}

		created = user
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "register user")
	}

	logCtx := s.logg.WithUserID(ctx, created.ID.String())
	s.logg.Info(s.logg.WithActorRole(logCtx, string(created.Role)), "user registered")
	return users.FromModel(created), nil
}
