// Package cloud implements the Cloud cost/billing accumulator for tiered
// cloud pricing (storage, network egress, operations), rolled up monthly
// (spec.md §4.8), and the polymorphic Cloud/Region/Bucket types. A Bucket is
// a core.StorageElement decorated with cost-tracking behaviour via
// composition + listener registration (spec.md §9: "the cloud bucket
// embeds a base storage element plus a cost tracker"), not subclassing.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

// PriceTier is one step of a TieredPrice schedule: UnitPriceNano applies to
// usage above the previous tier's Threshold, up to this tier's Threshold
// (the last tier's Threshold is ignored — it absorbs everything above the
// second-to-last).
type PriceTier struct {
	Threshold uint64 // cumulative usage at which this tier ends (ignored on the last tier)
	UnitPriceNano uint64 // price per unit, in nano-currency-units
}

// TieredPrice is an ordered sequence of (threshold, price_per_unit_nano)
// pairs (spec.md §3).
type TieredPrice []PriceTier

// Cost folds amount over the tiered price schedule (spec.md §4.8's
// recursive tiered-cost fold, implemented iteratively):
//
//	threshold_i = tier[i].Threshold - (i==0 ? 0 : tier[i-1].Threshold)
//	if amount <= threshold_i or i == last:
//	    return amount * tier[i].UnitPriceNano / 1e9
//	else:
//	    return threshold_i * tier[i].UnitPriceNano / 1e9 + Cost(amount - threshold_i, tier[i+1:])
//
// A single-tier schedule degenerates to amount * price / 1e9 (spec.md §8).
func (tp TieredPrice) Cost(amount float64) float64 {
	if len(tp) == 0 {
		return 0
	}
	var cost float64
	remaining := amount
	prevThreshold := uint64(0)
	for i, tier := range tp {
		last := i == len(tp)-1
		bandWidth := float64(tier.Threshold - prevThreshold)
		price := float64(tier.UnitPriceNano) / 1e9
		if last || remaining <= bandWidth {
			cost += remaining * price
			break
		}
		cost += bandWidth * price
		remaining -= bandWidth
		prevThreshold = tier.Threshold
	}
	return cost
}

// PriceAt returns the per-unit price (not /1e9'd) applicable to the usage
// level `used`: the first tier whose Threshold has not yet been exceeded, or
// the last tier once usage runs past every other tier's threshold (spec.md
// §4.8's price_at(used)). Mirrors Cost's tier-width convention: Threshold is
// the cumulative usage at which a tier ends, and the last tier's Threshold
// is ignored.
func (tp TieredPrice) PriceAt(used uint64) uint64 {
	if len(tp) == 0 {
		return 0
	}
	for i, tier := range tp {
		if i == len(tp)-1 || used <= tier.Threshold {
			return tier.UnitPriceNano
		}
	}
	return tp[len(tp)-1].UnitPriceNano
}

// SKU groups the three tiered price tables a bucket bills against.
type SKU struct {
	StoragePricePerGiBMonth TieredPrice
	ClassAOpPrice           TieredPrice
	ClassBOpPrice           TieredPrice
	NetworkEgressPrice      TieredPrice
}

// baseUnitConversionFactor converts byte counts into GiB, the unit storage
// accrual and network egress billing are priced in (spec.md §8 scenario S6
// names this factor explicitly).
const baseUnitConversionFactor = float64(1 << 30) // bytes per GiB
