// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: Base persistence models id, timestamp, tenant and version columns
// - campaign.go: campaigns and campaign_recipients, plus embedded address/artwork columns
// - suppression.go: do-not-mail entries, customer profiles, tenant suppression settings
// - billing.go: postage accounts and ledger entries
// - vendor_log.go: audit records of outbound mail vendor calls
package models

// All returns every model, in dependency order, for AutoMigrate in tests
func All() []any {
	return []any{
		&CampaignModel{},
		&RecipientModel{},
		&DoNotMailEntryModel{},
		&CustomerProfileModel{},
		&SuppressionSettingsModel{},
		&PostageAccountModel{},
		&LedgerEntryModel{},
		&VendorAPILogModel{},
	}
}
