package domain

import "time"

// Override sources. Flat rows replace legacy rows for the same feature.
const (
	OverrideSourceFlat   = "flat"
	OverrideSourceLegacy = "legacy"
)

// Feature 对应租户库 feature_catalog 表
// feature_id must stay a uniformly-typed BIGINT surrogate key; catalogs found
// with a legacy text key get healed on first load.
type Feature struct {
	FeatureID      int64  `db:"feature_id"`  // BIGINT IDENTITY, PRIMARY KEY
	FeatureKey     string `db:"feature_key"` // VARCHAR(100), UNIQUE, lowercased
	Label          string `db:"label"`
	Description    string `db:"description"`
	FeatureGroup   string `db:"feature_group"`
	DefaultEnabled bool   `db:"default_enabled"`
}

// Override is a per-user exception to a feature's default entitlement.
// Legacy rows carry FeatureID only; flat rows carry FeatureKey only. The
// entitlement engine resolves both through the catalog before merging.
type Override struct {
	UserID     int64
	FeatureID  int64
	FeatureKey string
	Allowed    bool
	UpdatedAt  time.Time
	Source     string // flat | legacy
}

// EffectiveFeature is the resolved entitlement for one (user, feature).
// IsOverride is display-only: true when an override exists and differs from
// the catalog default.
type EffectiveFeature struct {
	FeatureKey string `json:"feature_key"`
	Label      string `json:"label"`
	Group      string `json:"group"`
	Allowed    bool   `json:"allowed"`
	IsOverride bool   `json:"is_override"`
}

// DesiredFeature is one entry of a full-replace update payload.
// Allowed is a pointer so a missing boolean fails validation instead of
// silently defaulting to false.
type DesiredFeature struct {
	FeatureKey string `json:"feature_key"`
	Allowed    *bool  `json:"allowed"`
}

// FeatureDef is a statically-defined catalog entry used to seed and to
// synthesize catalogs when the tenant database cannot serve one.
type FeatureDef struct {
	Key   string
	Label string
	Group string
}

// BasicFeatures are enabled by default for every user.
var BasicFeatures = []FeatureDef{
	{Key: "dashboard", Label: "Dashboard", Group: "core"},
	{Key: "sales", Label: "Sales", Group: "operations"},
	{Key: "purchases", Label: "Purchases", Group: "operations"},
	{Key: "stock", Label: "Stock", Group: "operations"},
	{Key: "customers", Label: "Customers", Group: "partners"},
	{Key: "suppliers", Label: "Suppliers", Group: "partners"},
	{Key: "employees", Label: "Employees", Group: "organization"},
	{Key: "reports", Label: "Reports", Group: "insights"},
}

// AdvancedFeatures are disabled by default and granted per user.
var AdvancedFeatures = []FeatureDef{
	{Key: "analytics", Label: "Analytics", Group: "insights"},
	{Key: "exports", Label: "Exports", Group: "insights"},
	{Key: "credit_management", Label: "Credit Management", Group: "finance"},
	{Key: "price_scheduling", Label: "Price Scheduling", Group: "operations"},
	{Key: "multi_branch", Label: "Multi Branch", Group: "organization"},
	{Key: "api_access", Label: "API Access", Group: "platform"},
	{Key: "audit_trail", Label: "Audit Trail", Group: "platform"},
}
