// Package catalog loads the seed catalog (series, ebooks, membership packages
// and vouchers) from YAML and upserts it by natural key.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

type Catalog struct {
	Series   []Series  `mapstructure:"series"`
	Packages []Package `mapstructure:"packages"`
	Vouchers []Voucher `mapstructure:"vouchers"`
}

type Series struct {
	Title  string  `mapstructure:"title"`
	Ebooks []Ebook `mapstructure:"ebooks"`
}

type Ebook struct {
	Title    string `mapstructure:"title"`
	Volume   int    `mapstructure:"volume"`
	Price    int64  `mapstructure:"price"`
	CoverURL string `mapstructure:"cover_url"`
}

type Package struct {
	Name         string `mapstructure:"name"`
	Tier         string `mapstructure:"tier"`
	DurationDays int    `mapstructure:"duration_days"`
	PriceUSD     string `mapstructure:"price_usd"`
	Active       *bool  `mapstructure:"active"`
}

type Voucher struct {
	Code          string `mapstructure:"code"`
	Description   string `mapstructure:"description"`
	DiscountType  string `mapstructure:"discount_type"`
	DiscountValue string `mapstructure:"discount_value"`
	AppliesTo     string `mapstructure:"applies_to"`
	StartsAt      string `mapstructure:"starts_at"`
	EndsAt        string `mapstructure:"ends_at"`
	PerUserLimit  *int   `mapstructure:"per_user_limit"`
	TotalLimit    int    `mapstructure:"total_limit"`
	Active        *bool  `mapstructure:"active"`
}

// Load reads a catalog file. The format follows the file extension.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return &c, nil
}

type Stats struct {
	Series   int
	Ebooks   int
	Packages int
	Vouchers int
}

// Apply upserts the catalog in one transaction. Series match on title,
// ebooks on (series, volume), packages on name and vouchers on code.
func Apply(ctx context.Context, db *gorm.DB, c *Catalog) (Stats, error) {
	var st Stats
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range c.Series {
			if err := applySeries(tx, s, &st); err != nil {
				return err
			}
		}
		for _, p := range c.Packages {
			if err := applyPackage(tx, p); err != nil {
				return err
			}
			st.Packages++
		}
		for _, v := range c.Vouchers {
			if err := applyVoucher(tx, v); err != nil {
				return err
			}
			st.Vouchers++
		}
		return nil
	})
	return st, err
}

func applySeries(tx *gorm.DB, in Series, st *Stats) error {
	if in.Title == "" {
		return fmt.Errorf("series without title")
	}
	var s model.Series
	if err := tx.Where("title = ?", in.Title).Attrs(model.Series{Title: in.Title}).FirstOrCreate(&s).Error; err != nil {
		return fmt.Errorf("series %q: %w", in.Title, err)
	}
	st.Series++
	for i, e := range in.Ebooks {
		vol := e.Volume
		if vol == 0 {
			vol = i + 1
		}
		if e.Price <= 0 {
			return fmt.Errorf("series %q volume %d: price must be positive", in.Title, vol)
		}
		var cover *string
		if e.CoverURL != "" {
			cover = &e.CoverURL
		}
		var eb model.Ebook
		err := tx.Where("series_id = ? AND volume = ?", s.ID, vol).
			Assign(map[string]interface{}{"title": e.Title, "price": e.Price, "cover_url": cover}).
			Attrs(model.Ebook{SeriesID: s.ID, Volume: vol}).
			FirstOrCreate(&eb).Error
		if err != nil {
			return fmt.Errorf("series %q volume %d: %w", in.Title, vol, err)
		}
		st.Ebooks++
	}
	return nil
}

func applyPackage(tx *gorm.DB, in Package) error {
	price, err := decimal.NewFromString(in.PriceUSD)
	if err != nil || !price.IsPositive() {
		return fmt.Errorf("package %q: invalid price_usd %q", in.Name, in.PriceUSD)
	}
	if in.DurationDays <= 0 {
		return fmt.Errorf("package %q: duration_days must be positive", in.Name)
	}
	tier := model.MembershipTier(in.Tier)
	if tier == "" {
		tier = model.MembershipTierPremium
	}
	active := in.Active == nil || *in.Active
	var p model.MembershipPackage
	if err := tx.Where("name = ?", in.Name).
		Assign(map[string]interface{}{"tier": tier, "duration_days": in.DurationDays, "price_usd": price}).
		Attrs(model.MembershipPackage{Name: in.Name}).
		FirstOrCreate(&p).Error; err != nil {
		return fmt.Errorf("package %q: %w", in.Name, err)
	}
	// is_active has a column default, so false only sticks through an update
	return tx.Model(&p).Update("is_active", active).Error
}

func applyVoucher(tx *gorm.DB, in Voucher) error {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return fmt.Errorf("voucher without code")
	}
	value, err := decimal.NewFromString(in.DiscountValue)
	if err != nil || value.IsNegative() {
		return fmt.Errorf("voucher %s: invalid discount_value %q", code, in.DiscountValue)
	}
	typ := model.DiscountType(in.DiscountType)
	if typ != model.DiscountTypePercent && typ != model.DiscountTypeFixed {
		return fmt.Errorf("voucher %s: discount_type must be percent or fixed", code)
	}
	scope := model.VoucherScope(in.AppliesTo)
	switch scope {
	case "":
		scope = model.VoucherScopeBoth
	case model.VoucherScopeEbook, model.VoucherScopeMembership, model.VoucherScopeBoth:
	default:
		return fmt.Errorf("voucher %s: applies_to %q is invalid", code, in.AppliesTo)
	}
	startsAt, err := parseTime(in.StartsAt)
	if err != nil {
		return fmt.Errorf("voucher %s: starts_at: %w", code, err)
	}
	endsAt, err := parseTime(in.EndsAt)
	if err != nil {
		return fmt.Errorf("voucher %s: ends_at: %w", code, err)
	}
	perUser := 1
	if in.PerUserLimit != nil {
		perUser = *in.PerUserLimit
	}
	active := in.Active == nil || *in.Active

	fields := map[string]interface{}{
		"description":    in.Description,
		"discount_type":  typ,
		"discount_value": value,
		"applies_to":     scope,
		"starts_at":      startsAt,
		"ends_at":        endsAt,
		"per_user_limit": perUser,
		"total_limit":    in.TotalLimit,
		"is_active":      active,
	}
	var v model.Voucher
	if err := tx.Where("code = ?", code).
		Attrs(model.Voucher{Code: code, DiscountType: typ, DiscountValue: value, AppliesTo: scope}).
		FirstOrCreate(&v).Error; err != nil {
		return fmt.Errorf("voucher %s: %w", code, err)
	}
	return tx.Model(&v).Updates(fields).Error
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
