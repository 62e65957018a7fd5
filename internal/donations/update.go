package donations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haven-org/haven/internal/settings"
)

// ErrInvalidUpdate wraps every request-decoding failure.
var ErrInvalidUpdate = errors.New("invalid donation settings update")

// Update is a partial change. A nil field was absent from the request; a
// non-nil field is written even when it holds a zero value.
type Update struct {
	Goal               *float64
	PresetAmounts      *[]float64
	DefaultAmount      *float64
	ImpactExamples     *[]ImpactExample
	QuickDonateAmounts *[]float64
	DonationOptions    *[]Option
}

// Empty reports whether no field is present.
func (u Update) Empty() bool {
	return u.Goal == nil && u.PresetAmounts == nil && u.DefaultAmount == nil &&
		u.ImpactExamples == nil && u.QuickDonateAmounts == nil && u.DonationOptions == nil
}

// ParseUpdate decodes a JSON object, keeping track of which fields were
// present. Unknown fields are ignored. Any present field that does not decode
// into its type (null included) fails the whole update.
func ParseUpdate(body []byte) (Update, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	if fields == nil {
		return Update{}, fmt.Errorf("%w: body must be a JSON object", ErrInvalidUpdate)
	}

	var u Update
	var errs []error
	decode(fields, "goal", GoalKey, &u.Goal, &errs)
	decode(fields, "presetAmounts", PresetAmountsKey, &u.PresetAmounts, &errs)
	decode(fields, "defaultAmount", DefaultAmountKey, &u.DefaultAmount, &errs)
	decode(fields, "impactExamples", ImpactExamplesKey, &u.ImpactExamples, &errs)
	decode(fields, "quickDonateAmounts", QuickDonateAmountsKey, &u.QuickDonateAmounts, &errs)
	decode(fields, "donationOptions", DonationOptionsKey, &u.DonationOptions, &errs)
	if len(errs) > 0 {
		return Update{}, fmt.Errorf("%w: %w", ErrInvalidUpdate, errors.Join(errs...))
	}
	return u, nil
}

func decode[T any](fields map[string]json.RawMessage, field string, key settings.Key[T], dst **T, errs *[]error) {
	raw, ok := fields[field]
	if !ok {
		return
	}
	v, err := key.Decode(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("field %s: %w", field, err))
		return
	}
	*dst = &v
}

// Apply upserts each present field in response-field order and returns the
// keys written. The first store failure stops the sequence; keys written
// before it stay written.
func Apply(ctx context.Context, store settings.Store, u Update) ([]string, error) {
	var written []string
	steps := []struct {
		present bool
		name    string
		set     func() error
	}{
		{u.Goal != nil, GoalKey.Name, func() error { return set(ctx, store, GoalKey, u.Goal) }},
		{u.PresetAmounts != nil, PresetAmountsKey.Name, func() error { return set(ctx, store, PresetAmountsKey, u.PresetAmounts) }},
		{u.DefaultAmount != nil, DefaultAmountKey.Name, func() error { return set(ctx, store, DefaultAmountKey, u.DefaultAmount) }},
		{u.ImpactExamples != nil, ImpactExamplesKey.Name, func() error { return set(ctx, store, ImpactExamplesKey, u.ImpactExamples) }},
		{u.QuickDonateAmounts != nil, QuickDonateAmountsKey.Name, func() error { return set(ctx, store, QuickDonateAmountsKey, u.QuickDonateAmounts) }},
		{u.DonationOptions != nil, DonationOptionsKey.Name, func() error { return set(ctx, store, DonationOptionsKey, u.DonationOptions) }},
	}
	for _, step := range steps {
		if !step.present {
			continue
		}
		if err := step.set(); err != nil {
			return written, err
		}
		written = append(written, step.name)
	}
	return written, nil
}

func set[T any](ctx context.Context, store settings.Store, key settings.Key[T], v *T) error {
	_, err := key.Set(ctx, store, *v)
	return err
}
