package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations. Every table the
// application needs is created on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted model, in dependency order.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&userdomain.User{},
		&rbacdomain.Role{},
		&rbacdomain.Feature{},
		&auditdomain.AuditLog{},
		&productdomain.Product{},
		&productdomain.FeatureGroup{},
		&productdomain.Feature{},
		&plandomain.Plan{},
		&plandomain.Tier{},
		&packagedomain.Package{},
		&packagedomain.PackageDetail{},
		&pricingdomain.PricingModel{},
		&pricingdomain.PricingStructure{},
		&pricebookdomain.PriceBook{},
		&pricebookdomain.PriceBookEntry{},
		&pricebookdomain.PriceBookRule{},
		&pricebookdomain.DiscountPolicy{},
		&accountdomain.Account{},
		&accountdomain.Opportunity{},
		&quotedomain.Quote{},
		&quotedomain.QuoteComment{},
		&contractdomain.Contract{},
		&contractdomain.ContractSignature{},
		&contractdomain.ContractSignerDetails{},
		&contractdomain.EventDetail{},
		&contractdomain.ContractSignerAudit{},
		&sfdomain.FieldMapping{},
		&sfdomain.SyncLog{},
	}
}

// AutoMigrate builds the schema from the models. It backs the non-postgres
// dialects, which the SQL migrations do not target.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := conn.Table(rbacdomain.RuleTable).AutoMigrate(&rbacdomain.Rule{}); err != nil {
		return fmt.Errorf("auto migrate %s: %w", rbacdomain.RuleTable, err)
	}
	return nil
}
