package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*AddressDTO, error)
	Upsert(ctx context.Context, userID uuid.UUID, input Input) (*AddressDTO, error)
}

// Input is the shipping profile collected at checkout.
type Input struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

type AddressDTO struct {
	FullName   string  `json:"full_name"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*AddressDTO, error) {
	addr, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return toDTO(addr), nil
}

// Upsert validates and stores the address. It commits on its own so the
// address survives a checkout that later fails.
func (s *service) Upsert(ctx context.Context, userID uuid.UUID, input Input) (*AddressDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	input = input.normalized()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	record := &models.Address{
		UserID:     userID,
		FullName:   input.FullName,
		Phone:      input.Phone,
		Line1:      input.Line1,
		City:       input.City,
		State:      input.State,
		PostalCode: input.PostalCode,
		Country:    input.Country,
	}
	if input.Line2 != "" {
		line2 := input.Line2
		record.Line2 = &line2
	}
	saved, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save address")
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "shipping address saved")
	return toDTO(saved), nil
}

// Validate reports every missing required field at once.
func (in Input) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"full_name", in.FullName},
		{"phone", in.Phone},
		{"line1", in.Line1},
		{"city", in.City},
		{"state", in.State},
		{"postal_code", in.PostalCode},
		{"country", in.Country},
	}
	missing := map[string]string{}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing[r.field] = "is required"
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping profile is incomplete").WithDetails(missing)
	}
	return nil
}

func (in Input) normalized() Input {
	return Input{
		FullName:   strings.TrimSpace(in.FullName),
		Phone:      strings.TrimSpace(in.Phone),
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      strings.TrimSpace(in.Line2),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(in.Country)),
	}
}

func toDTO(addr *models.Address) *AddressDTO {
	return &AddressDTO{
		FullName:   addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}
