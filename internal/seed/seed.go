// Package seed provisions a demo tenant with a small catalog so a fresh
// install has something to schedule and bill.
package seed

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/cadencehq/cadence/internal/catalog/domain"
	"github.com/cadencehq/cadence/internal/config"
	customerdomain "github.com/cadencehq/cadence/internal/customer/domain"
	"github.com/cadencehq/cadence/internal/orgcontext"
	tenantdomain "github.com/cadencehq/cadence/internal/tenant/domain"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	TenantSvc   tenantdomain.Service
	CustomerSvc customerdomain.Service
	CatalogSvc  catalogdomain.Service
}

// Run is a no-op unless SEED_DEMO is set and the database holds no tenants.
func Run(p Params) error {
	if !p.Config.SeedDemo {
		return nil
	}
	ctx := context.Background()

	var count int64
	if err := p.DB.WithContext(ctx).Raw(`SELECT COUNT(1) FROM tenants`).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	log := p.Log.Named("seed")

	tenant, err := p.TenantSvc.Create(ctx, tenantdomain.CreateTenantRequest{
		Name: "Demo Accounting Firm",
		Slug: "demo",
	})
	if err != nil {
		return err
	}
	ctx = orgcontext.WithOrgID(ctx, int64(tenant.ID))

	customer, err := p.CustomerSvc.Create(ctx, customerdomain.CreateCustomerRequest{
		Name:  "Acme Pty Ltd",
		Email: "accounts@acme.example",
	})
	if err != nil {
		return err
	}

	dayOfMonth := 10
	offsetDays := 21
	template, err := p.CatalogSvc.CreateTemplate(ctx, catalogdomain.CreateServiceTemplateRequest{
		Name:             "Monthly Bookkeeping",
		DefaultPrice:     25000,
		TaxRateBps:       1000,
		PaymentTermsDays: 14,
		Tasks: []catalogdomain.CreateTaskTemplateRequest{
			{Title: "Reconcile bank accounts", Position: 1, DueRule: "day_of_month", DueDayOfMonth: &dayOfMonth},
			{Title: "Lodge activity statement", Position: 2, DueRule: "offset_days", DueOffsetDays: &offsetDays},
		},
	})
	if err != nil {
		return err
	}

	log.Info("demo data seeded",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("customer_id", customer.ID.String()),
		zap.String("template_id", template.ID.String()),
	)
	return nil
}
