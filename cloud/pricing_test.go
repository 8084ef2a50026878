/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cloud

import "testing"

func TestTieredPriceSingleTierDegeneratesToFlatRate(t *testing.T) {
	tp := TieredPrice{{Threshold: 0, UnitPriceNano: 1_000_000_000}} // $1/unit
	if got := tp.Cost(5); got != 5 {
		t.Fatalf("expected flat 5*1=5, got %v", got)
	}
}

func TestTieredPriceFoldsAcrossTiers(t *testing.T) {
	// Tier 0: first 10 units at $1/unit (1e9 nano)
	// Tier 1: next units (up to 30) at $2/unit
	// Tier 2: everything beyond at $3/unit
	tp := TieredPrice{
		{Threshold: 10, UnitPriceNano: 1_000_000_000},
		{Threshold: 30, UnitPriceNano: 2_000_000_000},
		{Threshold: 0, UnitPriceNano: 3_000_000_000}, // last tier's Threshold is ignored
	}

	// amount = 5: entirely in tier 0 => 5*1 = 5
	if got := tp.Cost(5); got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}

	// amount = 15: 10 units at $1 + 5 units at $2 = 10 + 10 = 20
	if got := tp.Cost(15); got != 20 {
		t.Fatalf("expected 20, got %v", got)
	}

	// amount = 40: 10@$1 + 20@$2 + 10@$3 = 10 + 40 + 30 = 80
	if got := tp.Cost(40); got != 80 {
		t.Fatalf("expected 80, got %v", got)
	}
}

func TestTieredPriceEmptyScheduleCostsNothing(t *testing.T) {
	var tp TieredPrice
	if got := tp.Cost(100); got != 0 {
		t.Fatalf("expected 0 cost for empty schedule, got %v", got)
	}
}

func TestTieredPriceExactBoundary(t *testing.T) {
	tp := TieredPrice{
		{Threshold: 10, UnitPriceNano: 1_000_000_000},
		{Threshold: 0, UnitPriceNano: 2_000_000_000},
	}
	// amount exactly at the first tier's bandwidth: stays in tier 0.
	if got := tp.Cost(10); got != 10 {
		t.Fatalf("expected boundary amount billed entirely at tier 0 rate, got %v", got)
	}
}

func TestPriceAtSelectsHighestAppliedTier(t *testing.T) {
	tp := TieredPrice{
		{Threshold: 10, UnitPriceNano: 100},
		{Threshold: 30, UnitPriceNano: 200},
		{Threshold: 0, UnitPriceNano: 300},
	}
	if got := tp.PriceAt(5); got != 100 {
		t.Fatalf("expected tier-0 price for used=5, got %v", got)
	}
	if got := tp.PriceAt(15); got != 200 {
		t.Fatalf("expected tier-1 price for used=15, got %v", got)
	}
	if got := tp.PriceAt(35); got != 300 {
		t.Fatalf("expected tier-2 price for used=35, got %v", got)
	}
}

func TestPriceAtEmptySchedule(t *testing.T) {
	var tp TieredPrice
	if got := tp.PriceAt(100); got != 0 {
		t.Fatalf("expected 0 for empty schedule, got %v", got)
	}
}
