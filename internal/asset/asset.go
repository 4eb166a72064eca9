package asset

import (
	"fmt"
	"math"
	"sort"
)

// PricedAsset is one currency, coin or metal priced in the home currency.
// Values are replaced, never mutated, on each refresh.
type PricedAsset struct {
	Code        string  `json:"code"`
	DisplayName string  `json:"display_name"`
	Price       float64 `json:"price"`

	// Change24h is the upstream 24 hour percentage change, when the
	// upstream reports one.
	Change24h *float64 `json:"change_24h,omitempty"`
}

// Trend is the direction a price moved between two refreshes.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Compare returns the trend from previous price p0 to new price p1.
func Compare(p0, p1 float64) Trend {
	switch {
	case p1 > p0:
		return TrendUp
	case p1 < p0:
		return TrendDown
	default:
		return TrendFlat
	}
}

// FromChange maps a percentage change to a trend. A nil change is flat.
func FromChange(change *float64) Trend {
	if change == nil {
		return TrendFlat
	}
	return Compare(0, *change)
}

// Snapshot maps asset codes to the previously displayed price.
type Snapshot map[string]float64

// SnapshotOf builds a snapshot from a list.
func SnapshotOf(assets []PricedAsset) Snapshot {
	s := make(Snapshot, len(assets))
	for _, a := range assets {
		s[a.Code] = a.Price
	}
	return s
}

// Trend compares a against the snapshot. Codes missing from the snapshot
// are flat.
func (s Snapshot) Trend(a PricedAsset) Trend {
	prev, ok := s[a.Code]
	if !ok {
		return TrendFlat
	}
	return Compare(prev, a.Price)
}

// SortByCode sorts assets ascending by code in place.
func SortByCode(assets []PricedAsset) {
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].Code < assets[j].Code
	})
}

// Normalize validates a freshly converted list and returns it sorted by
// code. Empty codes, duplicate codes and non-finite prices are rejected.
func Normalize(assets []PricedAsset) ([]PricedAsset, error) {
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if a.Code == "" {
			return nil, fmt.Errorf("asset with empty code")
		}
		if _, dup := seen[a.Code]; dup {
			return nil, fmt.Errorf("duplicate asset code %s", a.Code)
		}
		seen[a.Code] = struct{}{}
		if math.IsNaN(a.Price) || math.IsInf(a.Price, 0) {
			return nil, fmt.Errorf("non-finite price for %s", a.Code)
		}
	}

	out := make([]PricedAsset, len(assets))
	copy(out, assets)
	SortByCode(out)
	return out, nil
}
