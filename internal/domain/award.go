package domain

import (
	"time"
)

// CarrierVS is the only carrier the reward-seat checker is queried for.
const CarrierVS = "VS"

// DateLayout is the civil-date format used upstream, in storage keys and in URLs.
const DateLayout = "2006-01-02"

type CabinType string

const (
	CabinEconomy        CabinType = "ECONOMY"
	CabinPremiumEconomy CabinType = "PREMIUM_ECONOMY"
	CabinBusiness       CabinType = "BUSINESS"
	CabinFirst          CabinType = "FIRST" // never populated upstream
)

func ParseCabinType(s string) (CabinType, bool) {
	switch c := CabinType(s); c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return c, true
	}
	return "", false
}

// CabinAward is the points price and seat availability of one cabin on one date.
// Nil fields mean the upstream did not report them.
type CabinAward struct {
	PointsValue     *int
	IsSaverAward    *bool
	SeatCount       *int
	SeatCountString *string
}

func (a *CabinAward) points() *int {
	if a == nil {
		return nil
	}
	return a.PointsValue
}

func (a *CabinAward) seats() *int {
	if a == nil {
		return nil
	}
	return a.SeatCount
}

// Clone returns a deep copy so archived records never share pointers with live ones.
func (a *CabinAward) Clone() *CabinAward {
	if a == nil {
		return nil
	}
	return &CabinAward{
		PointsValue:     clonePtr(a.PointsValue),
		IsSaverAward:    clonePtr(a.IsSaverAward),
		SeatCount:       clonePtr(a.SeatCount),
		SeatCountString: clonePtr(a.SeatCountString),
	}
}

// SnapshotKey identifies one flight date's reward state.
type SnapshotKey struct {
	Origin      string
	Destination string
	Departure   time.Time // civil date, UTC midnight
	CarrierCode string
}

func (k SnapshotKey) String() string {
	return k.Origin + "-" + k.Destination + "/" + k.Departure.Format(DateLayout) + "/" + k.CarrierCode
}

// Snapshot is the known reward state of a key at ScrapedAt.
type Snapshot struct {
	ID             string
	Key            SnapshotKey
	ScrapedAt      time.Time
	Economy        *CabinAward
	PremiumEconomy *CabinAward
	Business       *CabinAward
	First          *CabinAward
}

func (s Snapshot) Cabin(c CabinType) *CabinAward {
	switch c {
	case CabinEconomy:
		return s.Economy
	case CabinPremiumEconomy:
		return s.PremiumEconomy
	case CabinBusiness:
		return s.Business
	case CabinFirst:
		return s.First
	}
	return nil
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Economy = s.Economy.Clone()
	out.PremiumEconomy = s.PremiumEconomy.Clone()
	out.Business = s.Business.Clone()
	out.First = s.First.Clone()
	return out
}

// DayAward is one per-day entry of an upstream award calendar.
type DayAward struct {
	Date                time.Time
	MinPrice            *float64
	Currency            string
	MinAwardPointsTotal *int
	Economy             *CabinAward
	PremiumEconomy      *CabinAward
	Business            *CabinAward
}

// ChangeEvent pairs the superseded latest snapshot with its replacement.
type ChangeEvent struct {
	Previous Snapshot
	Current  Snapshot
}

// Diff is the result of comparing two snapshots of the same key.
type Diff struct {
	PointsChanged bool
	SeatsChanged  bool
}

func (d Diff) Changed() bool { return d.PointsChanged || d.SeatsChanged }

// comparedCabins are the cabins that drive change detection. First is never
// populated and is left out.
var comparedCabins = []CabinType{CabinEconomy, CabinPremiumEconomy, CabinBusiness}

// CompareAwards reports whether any compared cabin's points value or numeric
// seat count differs. The saver flag and the seat count text are ignored.
func CompareAwards(existing, candidate Snapshot) Diff {
	var d Diff
	for _, c := range comparedCabins {
		a, b := existing.Cabin(c), candidate.Cabin(c)
		if !equalPtr(a.points(), b.points()) {
			d.PointsChanged = true
		}
		if !equalPtr(a.seats(), b.seats()) {
			d.SeatsChanged = true
		}
	}
	return d
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
