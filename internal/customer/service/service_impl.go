package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/clock"
	customerdomain "github.com/cadencehq/cadence/internal/customer/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
	"github.com/cadencehq/cadence/pkg/db/option"
	"github.com/cadencehq/cadence/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	customerrepo repository.Repository[customerdomain.Customer]
}

func NewService(p ServiceParam) customerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,

		customerrepo: repository.ProvideStore[customerdomain.Customer](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req customerdomain.CreateCustomerRequest) (customerdomain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return customerdomain.Customer{}, customerdomain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	customer := customerdomain.Customer{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.customerrepo.Create(ctx, &customer); err != nil {
		return customerdomain.Customer{}, err
	}
	return customer, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (customerdomain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return customerdomain.Customer{}, customerdomain.ErrInvalidOrganization
	}
	customerID, err := snowflake.ParseString(id)
	if err != nil {
		return customerdomain.Customer{}, customerdomain.ErrInvalidCustomerID
	}

	customer, err := s.customerrepo.FindOne(ctx, customerdomain.Customer{ID: customerID, OrgID: orgID})
	if err != nil {
		return customerdomain.Customer{}, err
	}
	if customer == nil {
		return customerdomain.Customer{}, customerdomain.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *Service) List(ctx context.Context) ([]customerdomain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, customerdomain.ErrInvalidOrganization
	}
	return s.customerrepo.Find(ctx, customerdomain.Customer{OrgID: orgID}, option.WithOrder("name, id"))
}
