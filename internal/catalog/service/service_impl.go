package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	"github.com/cadencehq/cadence/internal/clock"
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

	templaterepo repository.Repository[catalogdomain.ServiceTemplate]
	pricerepo    repository.Repository[catalogdomain.CustomerPrice]
}

func NewService(p ServiceParam) catalogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,

		templaterepo: repository.ProvideStore[catalogdomain.ServiceTemplate](p.DB),
		pricerepo:    repository.ProvideStore[catalogdomain.CustomerPrice](p.DB),
	}
}

func (s *Service) CreateTemplate(ctx context.Context, req catalogdomain.CreateServiceTemplateRequest) (catalogdomain.ServiceTemplate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return catalogdomain.ServiceTemplate{}, catalogdomain.ErrInvalidOrganization
	}
	if req.DefaultPrice < 0 || req.TaxRateBps < 0 {
		return catalogdomain.ServiceTemplate{}, catalogdomain.ErrInvalidPrice
	}

	var incomeAccountID *snowflake.ID
	if req.IncomeAccountID != nil {
		parsed, err := snowflake.ParseString(*req.IncomeAccountID)
		if err != nil {
			return catalogdomain.ServiceTemplate{}, catalogdomain.ErrInvalidAccountID
		}
		incomeAccountID = &parsed
	}

	now := s.clock.Now()
	template := catalogdomain.ServiceTemplate{
		ID:               s.genID.Generate(),
		OrgID:            orgID,
		Name:             req.Name,
		DefaultPrice:     req.DefaultPrice,
		TaxRateBps:       req.TaxRateBps,
		PaymentTermsDays: req.PaymentTermsDays,
		IncomeAccountID:  incomeAccountID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for i, task := range req.Tasks {
		position := task.Position
		if position == 0 {
			position = i
		}
		template.TaskTemplates = append(template.TaskTemplates, catalogdomain.TaskTemplate{
			ID:                s.genID.Generate(),
			OrgID:             orgID,
			ServiceTemplateID: template.ID,
			Title:             task.Title,
			Position:          position,
			Granularity:       task.Granularity,
			DueRule:           task.DueRule,
			DueExactDate:      task.DueExactDate,
			DueDayOfMonth:     task.DueDayOfMonth,
			DueOffsetDays:     task.DueOffsetDays,
			DueOffsetMonths:   task.DueOffsetMonths,
			CreatedAt:         now,
		})
	}

	if err := s.db.WithContext(ctx).Create(&template).Error; err != nil {
		return catalogdomain.ServiceTemplate{}, err
	}

	s.log.Info("service template created",
		zap.String("template_id", template.ID.String()),
		zap.Int("tasks", len(template.TaskTemplates)),
	)
	return template, nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (catalogdomain.ServiceTemplate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return catalogdomain.ServiceTemplate{}, catalogdomain.ErrInvalidOrganization
	}
	templateID, err := snowflake.ParseString(id)
	if err != nil {
		return catalogdomain.ServiceTemplate{}, catalogdomain.ErrInvalidTemplateID
	}

	var template catalogdomain.ServiceTemplate
	err = s.db.WithContext(ctx).
		Preload("TaskTemplates", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Where("org_id = ? AND id = ?", orgID, templateID).
		First(&template).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return catalogdomain.ServiceTemplate{}, catalogdomain.ErrTemplateNotFound
		}
		return catalogdomain.ServiceTemplate{}, err
	}
	return template, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]catalogdomain.ServiceTemplate, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, catalogdomain.ErrInvalidOrganization
	}
	return s.templaterepo.Find(ctx, catalogdomain.ServiceTemplate{OrgID: orgID}, option.WithOrder("name, id"))
}

func (s *Service) SetCustomerPrice(ctx context.Context, req catalogdomain.SetCustomerPriceRequest) (catalogdomain.CustomerPrice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return catalogdomain.CustomerPrice{}, catalogdomain.ErrInvalidOrganization
	}
	if req.Price <= 0 {
		return catalogdomain.CustomerPrice{}, catalogdomain.ErrInvalidPrice
	}
	customerID, err := snowflake.ParseString(req.CustomerID)
	if err != nil {
		return catalogdomain.CustomerPrice{}, catalogdomain.ErrInvalidTemplateID
	}
	templateID, err := snowflake.ParseString(req.ServiceTemplateID)
	if err != nil {
		return catalogdomain.CustomerPrice{}, catalogdomain.ErrInvalidTemplateID
	}

	now := s.clock.Now()
	price := catalogdomain.CustomerPrice{
		ID:                s.genID.Generate(),
		OrgID:             orgID,
		CustomerID:        customerID,
		ServiceTemplateID: templateID,
		Price:             req.Price,
		CreatedAt:         now,
	}
	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO customer_prices (id, org_id, customer_id, service_template_id, price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (org_id, customer_id, service_template_id) DO UPDATE SET price = EXCLUDED.price`,
		price.ID,
		price.OrgID,
		price.CustomerID,
		price.ServiceTemplateID,
		price.Price,
		price.CreatedAt,
	).Error
	if err != nil {
		return catalogdomain.CustomerPrice{}, err
	}
	return price, nil
}

func (s *Service) ListCustomerPrices(ctx context.Context, customerID string) ([]catalogdomain.CustomerPrice, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, catalogdomain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(customerID)
	if err != nil {
		return nil, catalogdomain.ErrInvalidTemplateID
	}
	return s.pricerepo.Find(ctx,
		catalogdomain.CustomerPrice{OrgID: orgID, CustomerID: id},
		option.WithOrder("service_template_id"),
	)
}
