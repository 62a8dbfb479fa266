package model

// All lists every table managed by AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&CoinLedgerEntry{},
		&Series{},
		&Ebook{},
		&CartItem{},
		&PurchaseRecord{},
		&Voucher{},
		&VoucherUsage{},
		&MembershipPackage{},
		&MembershipPurchase{},
		&Notification{},
		&PaymentWebhookEvent{},
	}
}
