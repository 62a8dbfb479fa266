package model

import "time"

type MembershipTier string

const (
	MembershipTierBasic   MembershipTier = "basic"
	MembershipTierPremium MembershipTier = "premium"
)

// User holds the coin balance and membership state keyed by the Firebase UID.
type User struct {
	UID                 string         `gorm:"column:uid;primaryKey;size:128"`
	Coins               int64          `gorm:"column:coins;not null;default:0"`
	MembershipTier      MembershipTier `gorm:"column:membership_tier;size:16;not null;default:'basic'"`
	MembershipExpiresAt *time.Time     `gorm:"column:membership_expires_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime"`
	CreatedAt           time.Time      `gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}

// IsPremium reports whether a premium period is running at now.
func (u *User) IsPremium(now time.Time) bool {
	return u.MembershipTier == MembershipTierPremium &&
		u.MembershipExpiresAt != nil && u.MembershipExpiresAt.After(now)
}

func (u *User) EffectiveTier(now time.Time) MembershipTier {
	if u.IsPremium(now) {
		return MembershipTierPremium
	}
	return MembershipTierBasic
}
