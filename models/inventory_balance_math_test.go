package models_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bgrlango/WMS-Manufacture-sub000/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestWeightedAverageCost(t *testing.T) {
	cases := []struct {
		name       string
		onHand     string
		currentAvg string
		inQty      string
		unitCost   string
		want       string
	}{
		// 50 on hand at 20.00, receive 100 at 10.00 -> 2000/150
		{"blends receipt into running average", "50", "20.00", "100", "10.00", "13.33"},
		{"first receipt sets the average", "0", "0", "120", "12.50", "12.50"},
		{"same cost leaves average unchanged", "30", "8.00", "70", "8.00", "8.00"},
		{"negative on-hand costs like a first receipt", "-5", "20.00", "10", "7.00", "7.00"},
		{"zero total falls back to unit cost", "0", "0", "0", "9.999", "10.00"},
		{"rounds half up at 2dp", "3", "10.00", "3", "10.01", "10.01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.WeightedAverageCost(d(tc.onHand), d(tc.currentAvg), d(tc.inQty), d(tc.unitCost))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("WeightedAverageCost(%s@%s + %s@%s) = %s, want %s",
					tc.onHand, tc.currentAvg, tc.inQty, tc.unitCost, got.String(), tc.want)
			}
		})
	}
}

func TestCanonicalBalanceKeysOrdersAndDedupes(t *testing.T) {
	keys := []models.BalanceKey{
		{PartNumber: "RM-STEEL-3MM", LocationId: 5},
		{PartNumber: "CP-BOLT-M8", LocationId: 9},
		{PartNumber: "RM-STEEL-3MM", LocationId: 2},
		{PartNumber: "CP-BOLT-M8", LocationId: 9}, // duplicate
		{PartNumber: "RM-PAINT-BLK", LocationId: 2},
	}

	got := models.CanonicalBalanceKeys(keys)
	want := []models.BalanceKey{
		{PartNumber: "CP-BOLT-M8", LocationId: 9},
		{PartNumber: "RM-PAINT-BLK", LocationId: 2},
		{PartNumber: "RM-STEEL-3MM", LocationId: 2},
		{PartNumber: "RM-STEEL-3MM", LocationId: 5},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCanonicalBalanceKeysHandlesEmpty(t *testing.T) {
	if got := models.CanonicalBalanceKeys(nil); len(got) != 0 {
		t.Fatalf("nil input should yield no keys, got %v", got)
	}
}
