package virgin

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"rewardo/internal/domain"
)

const adultPassenger = "ADULT"

// ---- request ----

type flightRequest struct {
	Slice             slice    `json:"slice"`
	Passengers        []string `json:"passengers"`
	PermittedCarriers []string `json:"permittedCarriers"`
	Years             []int    `json:"years"`
	Months            []string `json:"months"`
}

type slice struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Departure   string `json:"departure"`
}

func newFlightRequest(r domain.MonthRequest) flightRequest {
	return flightRequest{
		Slice: slice{
			Origin:      r.Origin,
			Destination: r.Destination,
			Departure:   r.Departure.Format(domain.DateLayout),
		},
		Passengers:        []string{adultPassenger},
		PermittedCarriers: []string{domain.CarrierVS},
		Years:             []int{r.Year},
		Months:            []string{monthName(r.Month)},
	}
}

// monthName renders the upper-case English month name the endpoint expects ("OCTOBER").
func monthName(m time.Month) string { return strings.ToUpper(m.String()) }

// ---- response ----

type awardCalendar struct {
	Date                     string      `json:"date"`
	MinPrice                 *float64    `json:"minPrice"`
	Currency                 string      `json:"currency"`
	MinAwardPointsTotal      *int        `json:"minAwardPointsTotal"`
	Seats                    *seats      `json:"seats"`
	PointsDays               []pointsDay `json:"pointsDays"`
	Month                    looseString `json:"month"`
	Year                     looseString `json:"year"`
	TotalAwardsSeatsForMonth *int        `json:"totalAwardsSeatsForMonth"`
	OriginPrettyName         string      `json:"originPrettyName"`
	DestinationPrettyName    string      `json:"destinationPrettyName"`
}

type pointsDay struct {
	Date                string   `json:"date"`
	MinPrice            *float64 `json:"minPrice"`
	Currency            string   `json:"currency"`
	MinAwardPointsTotal *int     `json:"minAwardPointsTotal"`
	Seats               *seats   `json:"seats"`
}

type seats struct {
	AwardEconomy                   *cabinAward `json:"awardEconomy"`
	AwardComfortPlusPremiumEconomy *cabinAward `json:"awardComfortPlusPremiumEconomy"`
	AwardBusiness                  *cabinAward `json:"awardBusiness"`
}

type cabinAward struct {
	CabinPointsValue          *int    `json:"cabinPointsValue"`
	IsSaverAward              *bool   `json:"isSaverAward"`
	CabinClassSeatCount       *int    `json:"cabinClassSeatCount"`
	CabinClassSeatCountString *string `json:"cabinClassSeatCountString"`
}

// looseString accepts both "2025" and 2025.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(b)
	return nil
}

// ---- wire -> domain ----

func toCabinAward(c *cabinAward) *domain.CabinAward {
	if c == nil {
		return nil
	}
	return &domain.CabinAward{
		PointsValue:     c.CabinPointsValue,
		IsSaverAward:    c.IsSaverAward,
		SeatCount:       c.CabinClassSeatCount,
		SeatCountString: c.CabinClassSeatCountString,
	}
}

func toDayAward(p pointsDay) (domain.DayAward, error) {
	date, err := time.Parse(domain.DateLayout, p.Date)
	if err != nil {
		return domain.DayAward{}, errors.Wrapf(err, "points day date %q", p.Date)
	}
	d := domain.DayAward{
		Date:                date,
		MinPrice:            p.MinPrice,
		Currency:            p.Currency,
		MinAwardPointsTotal: p.MinAwardPointsTotal,
	}
	if p.Seats != nil {
		d.Economy = toCabinAward(p.Seats.AwardEconomy)
		d.PremiumEconomy = toCabinAward(p.Seats.AwardComfortPlusPremiumEconomy)
		d.Business = toCabinAward(p.Seats.AwardBusiness)
	}
	return d, nil
}
