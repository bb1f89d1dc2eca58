package httpserver

import (
	"time"

	"rewardo/internal/domain"
)

// JSON shapes served by the API and the change stream.

type awardView struct {
	PointsValue     *int    `json:"cabin_points_value"`
	IsSaverAward    *bool   `json:"is_saver_award"`
	SeatCount       *int    `json:"cabin_class_seat_count"`
	SeatCountString *string `json:"cabin_class_seat_count_string"`
}

type snapshotView struct {
	ID                  string     `json:"id"`
	Origin              string     `json:"origin"`
	Destination         string     `json:"destination"`
	Departure           string     `json:"departure"`
	CarrierCode         string     `json:"carrier_code"`
	ScrapedAt           time.Time  `json:"scraped_at"`
	AwardEconomy        *awardView `json:"award_economy"`
	AwardPremiumEconomy *awardView `json:"award_premium_economy"`
	AwardBusiness       *awardView `json:"award_business"`
	AwardFirst          *awardView `json:"award_first"`
}

type changeView struct {
	Previous snapshotView `json:"previous"`
	Current  snapshotView `json:"current"`
}

type snapshotsPageView struct {
	Content       []snapshotView `json:"content"`
	PageNumber    int            `json:"page_number"`
	PageSize      int            `json:"page_size"`
	TotalElements int64          `json:"total_elements"`
	TotalPages    int            `json:"total_pages"`
}

type pairView struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Count       int64  `json:"count"`
	Airline     string `json:"airline,omitempty"`
}

type pairsPageView struct {
	Routes      []pairView `json:"routes"`
	CurrentPage int        `json:"currentPage"`
	TotalItems  int64      `json:"totalItems"`
	TotalPages  int        `json:"totalPages"`
}

func toAwardView(a *domain.CabinAward) *awardView {
	if a == nil {
		return nil
	}
	return &awardView{
		PointsValue:     a.PointsValue,
		IsSaverAward:    a.IsSaverAward,
		SeatCount:       a.SeatCount,
		SeatCountString: a.SeatCountString,
	}
}

func toSnapshotView(s domain.Snapshot) snapshotView {
	return snapshotView{
		ID:                  s.ID,
		Origin:              s.Key.Origin,
		Destination:         s.Key.Destination,
		Departure:           s.Key.Departure.Format(domain.DateLayout),
		CarrierCode:         s.Key.CarrierCode,
		ScrapedAt:           s.ScrapedAt.UTC(),
		AwardEconomy:        toAwardView(s.Economy),
		AwardPremiumEconomy: toAwardView(s.PremiumEconomy),
		AwardBusiness:       toAwardView(s.Business),
		AwardFirst:          toAwardView(s.First),
	}
}

func toChangeView(ev domain.ChangeEvent) changeView {
	return changeView{Previous: toSnapshotView(ev.Previous), Current: toSnapshotView(ev.Current)}
}

func toSnapshotsPageView(p domain.SnapshotsPage) snapshotsPageView {
	out := snapshotsPageView{
		Content:       make([]snapshotView, 0, len(p.Items)),
		PageNumber:    p.Page,
		PageSize:      p.Size,
		TotalElements: p.TotalItems,
		TotalPages:    domain.TotalPages(p.TotalItems, p.Size),
	}
	for _, s := range p.Items {
		out.Content = append(out.Content, toSnapshotView(s))
	}
	return out
}

func toPairsPageView(p domain.PairCountsPage, airline string) pairsPageView {
	out := pairsPageView{
		Routes:      make([]pairView, 0, len(p.Items)),
		CurrentPage: p.Page,
		TotalItems:  p.TotalItems,
		TotalPages:  domain.TotalPages(p.TotalItems, p.Size),
	}
	for _, pc := range p.Items {
		out.Routes = append(out.Routes, pairView{
			Origin:      pc.Origin,
			Destination: pc.Destination,
			Count:       pc.Count,
			Airline:     airline,
		})
	}
	return out
}
