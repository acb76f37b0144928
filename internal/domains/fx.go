// Package domains bundles the provider adapters and domain services shared
// by the API server and the sweep command.
package domains

import (
	"github.com/smallbiznis/pricedesk/internal/account"
	"github.com/smallbiznis/pricedesk/internal/audit"
	"github.com/smallbiznis/pricedesk/internal/contract"
	"github.com/smallbiznis/pricedesk/internal/document"
	"github.com/smallbiznis/pricedesk/internal/packages"
	"github.com/smallbiznis/pricedesk/internal/plan"
	"github.com/smallbiznis/pricedesk/internal/pricebook"
	"github.com/smallbiznis/pricedesk/internal/pricing"
	"github.com/smallbiznis/pricedesk/internal/product"
	"github.com/smallbiznis/pricedesk/internal/providers/awsconfig"
	"github.com/smallbiznis/pricedesk/internal/providers/email"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
	"github.com/smallbiznis/pricedesk/internal/providers/identity"
	"github.com/smallbiznis/pricedesk/internal/providers/pdf"
	sfclient "github.com/smallbiznis/pricedesk/internal/providers/salesforce"
	"github.com/smallbiznis/pricedesk/internal/providers/secrets"
	"github.com/smallbiznis/pricedesk/internal/providers/storage"
	"github.com/smallbiznis/pricedesk/internal/quote"
	"github.com/smallbiznis/pricedesk/internal/rbac"
	"github.com/smallbiznis/pricedesk/internal/salesforce"
	"github.com/smallbiznis/pricedesk/internal/tenant"
	"github.com/smallbiznis/pricedesk/internal/user"
	"go.uber.org/fx"
)

var Module = fx.Module("domains",
	// Provider adapters
	awsconfig.Module,
	secrets.Module,
	storage.Module,
	email.Module,
	pdf.Module,
	esign.Module,
	identity.Module,
	sfclient.Module,

	// Domain services
	audit.Module,
	tenant.Module,
	user.Module,
	rbac.Module,
	account.Module,
	product.Module,
	plan.Module,
	packages.Module,
	pricing.Module,
	pricebook.Module,
	quote.Module,
	contract.Module,
	salesforce.Module,
	document.Module,
)
