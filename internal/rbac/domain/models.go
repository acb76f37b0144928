package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
)

// RuleTable is the table managed by the casbin gorm adapter.
const RuleTable = "casbin_rule"

// Rule is one casbin_rule row.
type Rule = gormadapter.CasbinRule

const (
	PtypePolicy   = "p"
	PtypeGrouping = "g"
)

const AdminRole = "admin"

// Features gated by requireFeature. Keys are stable; they are stored in
// casbin_rule.
const (
	FeatureTenant      = "tenant"
	FeatureUser        = "user"
	FeatureRBAC        = "rbac"
	FeatureAccount     = "account"
	FeatureOpportunity = "opportunity"
	FeatureProduct     = "product"
	FeaturePlan        = "plan"
	FeaturePackage     = "package"
	FeaturePricing     = "pricing"
	FeaturePriceBook   = "pricebook"
	FeatureQuote       = "quote"
	FeatureQuoteAdmin  = "quote_admin"
	FeatureContract    = "contract"
	FeatureSalesforce  = "salesforce"
	FeatureDocument    = "document"
	FeatureAuditLog    = "audit_log"
)

var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE"}

type Role struct {
	model.Base
	Name        string `json:"name" gorm:"type:text;not null"`
	Description string `json:"description" gorm:"type:text"`
}

func (Role) TableName() string { return "rbac_roles" }

// Feature is the global catalogue of grantable features.
type Feature struct {
	Key         string    `json:"key" gorm:"primaryKey;type:text"`
	Description string    `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}

func (Feature) TableName() string { return "rbac_features" }

var Catalogue = []Feature{
	{Key: FeatureTenant, Description: "Tenant settings"},
	{Key: FeatureUser, Description: "Users and invitations"},
	{Key: FeatureRBAC, Description: "Roles and grants"},
	{Key: FeatureAccount, Description: "Accounts"},
	{Key: FeatureOpportunity, Description: "Opportunities"},
	{Key: FeatureProduct, Description: "Products, feature repository and feature groups"},
	{Key: FeaturePlan, Description: "Plans and tiers"},
	{Key: FeaturePackage, Description: "Packages and package details"},
	{Key: FeaturePricing, Description: "Pricing models and structures"},
	{Key: FeaturePriceBook, Description: "Price books, rules and discount policies"},
	{Key: FeatureQuote, Description: "Quotes"},
	{Key: FeatureQuoteAdmin, Description: "Quote reopen and administration"},
	{Key: FeatureContract, Description: "Contracts and signatures"},
	{Key: FeatureSalesforce, Description: "Salesforce integration"},
	{Key: FeatureDocument, Description: "Generated documents"},
	{Key: FeatureAuditLog, Description: "Audit log"},
}

// Permissions maps a feature key to the HTTP methods granted on it.
type Permissions map[string][]string

func TenantDomain(tenantID snowflake.ID) string {
	return fmt.Sprintf("tenant:%s", tenantID.String())
}

func RoleSubject(name string) string {
	return fmt.Sprintf("role:%s", name)
}

func UserSubject(userID snowflake.ID) string {
	return fmt.Sprintf("user:%s", userID.String())
}
