package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cadencehq/cadence/internal/clock"
	"github.com/cadencehq/cadence/internal/config"
	ledgerdomain "github.com/cadencehq/cadence/internal/ledger/domain"
	tenantdomain "github.com/cadencehq/cadence/internal/tenant/domain"
	"github.com/cadencehq/cadence/pkg/db"
	"github.com/cadencehq/cadence/pkg/db/option"
	"github.com/cadencehq/cadence/pkg/repository"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Ledger ledgerdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	cfg    config.Config
	ledger ledgerdomain.Service

	tenantrepo repository.Repository[tenantdomain.Tenant]
}

func NewService(p ServiceParam) tenantdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("tenant.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		cfg:    p.Config,
		ledger: p.Ledger,

		tenantrepo: repository.ProvideStore[tenantdomain.Tenant](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	fiscalMonth := req.FiscalYearStartMonth
	if fiscalMonth == 0 {
		fiscalMonth = s.cfg.DefaultFiscalYearStartMonth
	}
	if fiscalMonth < 1 || fiscalMonth > 12 {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidFiscalMonth
	}
	allowUnmapped := s.cfg.DefaultAllowUnmappedLedger
	if req.AllowUnmappedLedger != nil {
		allowUnmapped = *req.AllowUnmappedLedger
	}

	now := s.clock.Now()
	tenant := tenantdomain.Tenant{
		ID:                   s.genID.Generate(),
		Name:                 req.Name,
		Slug:                 strings.ToLower(strings.TrimSpace(req.Slug)),
		FiscalYearStartMonth: fiscalMonth,
		AllowUnmappedLedger:  allowUnmapped,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return tenantdomain.ErrSlugTaken
			}
			return err
		}

		income, err := s.ledger.EnsureChartOfAccounts(ctx, tx, tenant.ID)
		if err != nil {
			return err
		}
		if err := tx.Exec(
			`UPDATE tenants SET default_income_account_id = ?, updated_at = ? WHERE id = ?`,
			income.ID, now, tenant.ID,
		).Error; err != nil {
			return err
		}
		tenant.DefaultIncomeAccountID = &income.ID

		return tx.Exec(
			`INSERT INTO invoice_sequences (org_id, prefix, suffix, width, zero_pad, next_number, created_at, updated_at)
			 VALUES (?, 'INV-', '', 5, TRUE, 1, ?, ?)
			 ON CONFLICT (org_id) DO NOTHING`,
			tenant.ID, now, now,
		).Error
	})
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.log.Info("tenant provisioned",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
	)
	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenantID, err := snowflake.ParseString(id)
	if err != nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidTenantID
	}
	tenant, err := s.tenantrepo.FindOne(ctx, tenantdomain.Tenant{ID: tenantID})
	if err != nil {
		return tenantdomain.Tenant{}, err
	}
	if tenant == nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrTenantNotFound
	}
	return *tenant, nil
}

func (s *Service) List(ctx context.Context) ([]tenantdomain.Tenant, error) {
	return s.tenantrepo.Find(ctx, tenantdomain.Tenant{}, option.WithOrder("id"))
}

func (s *Service) UpdateSettings(ctx context.Context, id string, req tenantdomain.UpdateTenantSettingsRequest) (tenantdomain.Tenant, error) {
	tenant, err := s.GetByID(ctx, id)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	if req.FiscalYearStartMonth != nil {
		month := *req.FiscalYearStartMonth
		if month < 1 || month > 12 {
			return tenantdomain.Tenant{}, tenantdomain.ErrInvalidFiscalMonth
		}
		tenant.FiscalYearStartMonth = month
	}
	if req.AllowUnmappedLedger != nil {
		tenant.AllowUnmappedLedger = *req.AllowUnmappedLedger
	}
	tenant.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Exec(
		`UPDATE tenants SET fiscal_year_start_month = ?, allow_unmapped_ledger = ?, updated_at = ? WHERE id = ?`,
		tenant.FiscalYearStartMonth,
		tenant.AllowUnmappedLedger,
		tenant.UpdatedAt,
		tenant.ID,
	).Error
	if err != nil {
		return tenantdomain.Tenant{}, err
	}
	return tenant, nil
}
