package domain

type Airport struct {
	City        string `json:"city"`
	AirportCode string `json:"airportCode"`
	Country     string `json:"country"`
}

// Route is an origin airport and the destinations served from it, in the
// order the route directory lists them.
type Route struct {
	Origin       Airport   `json:"origin"`
	Destinations []Airport `json:"destinations"`
}

// CountDestinations returns the number of origin/destination legs in routes.
func CountDestinations(routes []Route) int {
	n := 0
	for _, r := range routes {
		n += len(r.Destinations)
	}
	return n
}
