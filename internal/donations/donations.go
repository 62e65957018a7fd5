// Package donations maps the donation widget configuration onto individual
// settings keys.
package donations

import (
	"context"

	"github.com/haven-org/haven/internal/settings"
)

// Category tags every donation key.
const Category = "donations"

// ImpactExample describes what a given contribution funds.
type ImpactExample struct {
	Amount float64 `json:"amount"`
	Text   string  `json:"text"`
}

// Option is one tier of the tiered-giving list. Amount is a display string.
type Option struct {
	Title       string `json:"title"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

// Settings is the aggregate served to the donation UI.
type Settings struct {
	Goal               float64         `json:"goal"`
	PresetAmounts      []float64       `json:"presetAmounts"`
	DefaultAmount      float64         `json:"defaultAmount"`
	ImpactExamples     []ImpactExample `json:"impactExamples"`
	QuickDonateAmounts []float64       `json:"quickDonateAmounts"`
	DonationOptions    []Option        `json:"donationOptions"`
}

// Defaults returns a fresh copy of the values served when nothing is stored.
func Defaults() Settings {
	return Settings{
		Goal:          100000,
		PresetAmounts: []float64{5, 10, 20, 50, 100},
		DefaultAmount: 25,
		ImpactExamples: []ImpactExample{
			{Amount: 25, Text: "Provides school supplies for one child for a semester"},
			{Amount: 50, Text: "Feeds a family at our shelter for a week"},
			{Amount: 100, Text: "Funds a vocational training workshop for one participant"},
			{Amount: 250, Text: "Covers a month of safe housing for a mother and child"},
		},
		QuickDonateAmounts: []float64{10, 25, 50},
		DonationOptions: []Option{
			{
				Title:       "Friend",
				Amount:      "$10/month",
				Description: "Join our monthly giving community",
				Impact:      "Provides meals and clean water for a child every month",
			},
			{
				Title:       "Advocate",
				Amount:      "$50/month",
				Description: "Sustain our education and shelter programs",
				Impact:      "Funds tutoring and school supplies for three children",
			},
			{
				Title:       "Champion",
				Amount:      "$100/month",
				Description: "Become a cornerstone supporter",
				Impact:      "Sponsors vocational training for a young adult",
			},
		},
	}
}

var defaults = Defaults()

// Stored keys. Each carries a fixed description and the donations category.
var (
	GoalKey = settings.Key[float64]{
		Name: "donation_goal", Description: "Donation goal amount",
		Category: Category, Default: defaults.Goal,
	}
	PresetAmountsKey = settings.Key[[]float64]{
		Name: "donation_preset_amounts", Description: "Preset donation amounts",
		Category: Category, Default: defaults.PresetAmounts,
	}
	DefaultAmountKey = settings.Key[float64]{
		Name: "donation_default_amount", Description: "Default donation amount",
		Category: Category, Default: defaults.DefaultAmount,
	}
	ImpactExamplesKey = settings.Key[[]ImpactExample]{
		Name: "donation_impact_examples", Description: "Donation impact examples",
		Category: Category, Default: defaults.ImpactExamples,
	}
	QuickDonateAmountsKey = settings.Key[[]float64]{
		Name: "donation_quick_amounts", Description: "Quick donate amounts",
		Category: Category, Default: defaults.QuickDonateAmounts,
	}
	DonationOptionsKey = settings.Key[[]Option]{
		Name: "donation_options", Description: "Donation options",
		Category: Category, Default: defaults.DonationOptions,
	}
)

// Keys lists the stored key names in response-field order.
func Keys() []string {
	return []string{
		GoalKey.Name,
		PresetAmountsKey.Name,
		DefaultAmountKey.Name,
		ImpactExamplesKey.Name,
		QuickDonateAmountsKey.Name,
		DonationOptionsKey.Name,
	}
}

// Load reads the six keys independently, each falling back to its default.
// The reads are not transactional: a concurrent write may land between them.
func Load(ctx context.Context, store settings.Store) (Settings, error) {
	d := Defaults()
	var (
		out Settings
		err error
	)
	if out.Goal, err = settings.GetSetting(ctx, store, GoalKey.Name, d.Goal); err != nil {
		return Settings{}, err
	}
	if out.PresetAmounts, err = settings.GetSetting(ctx, store, PresetAmountsKey.Name, d.PresetAmounts); err != nil {
		return Settings{}, err
	}
	if out.DefaultAmount, err = settings.GetSetting(ctx, store, DefaultAmountKey.Name, d.DefaultAmount); err != nil {
		return Settings{}, err
	}
	if out.ImpactExamples, err = settings.GetSetting(ctx, store, ImpactExamplesKey.Name, d.ImpactExamples); err != nil {
		return Settings{}, err
	}
	if out.QuickDonateAmounts, err = settings.GetSetting(ctx, store, QuickDonateAmountsKey.Name, d.QuickDonateAmounts); err != nil {
		return Settings{}, err
	}
	if out.DonationOptions, err = settings.GetSetting(ctx, store, DonationOptionsKey.Name, d.DonationOptions); err != nil {
		return Settings{}, err
	}
	return out, nil
}
