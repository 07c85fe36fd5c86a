// Package regions holds the canonical server region registry and the
// helpers that map loose client input (free text, country codes,
// coordinates) onto canonical region keys.
package regions

import (
	"math"
	"strings"
)

// Region is a static registry entry. Entries are never created or
// modified at runtime.
type Region struct {
	Key       string
	Label     string
	Latitude  float64
	Longitude float64
}

// registry is the canonical region set. Coordinates are the rough
// location of the reference datacenter for each zone.
var registry = []Region{
	{Key: "NA-East", Label: "North America (East)", Latitude: 39.04, Longitude: -77.49},
	{Key: "NA-Central", Label: "North America (Central)", Latitude: 32.78, Longitude: -96.80},
	{Key: "NA-West", Label: "North America (West)", Latitude: 34.05, Longitude: -118.24},
	{Key: "SA-East", Label: "South America", Latitude: -23.55, Longitude: -46.63},
	{Key: "EU-West", Label: "Europe (West)", Latitude: 51.51, Longitude: -0.13},
	{Key: "EU-Central", Label: "Europe (Central)", Latitude: 50.11, Longitude: 8.68},
	{Key: "ME", Label: "Middle East", Latitude: 25.20, Longitude: 55.27},
	{Key: "India", Label: "India", Latitude: 19.08, Longitude: 72.88},
	{Key: "Asia-East", Label: "Asia (East)", Latitude: 35.68, Longitude: 139.69},
	{Key: "Asia-SE", Label: "Asia (Southeast)", Latitude: 1.35, Longitude: 103.82},
	{Key: "OCE", Label: "Oceania", Latitude: -33.87, Longitude: 151.21},
	{Key: "Africa", Label: "Africa", Latitude: -26.20, Longitude: 28.05},
}

// aliases maps common non-canonical spellings to canonical keys.
// Keys are pre-folded (lowercase, spaces/underscores collapsed to "-").
var aliases = map[string]string{
	"us-east":       "NA-East",
	"useast":        "NA-East",
	"virginia":      "NA-East",
	"ashburn":       "NA-East",
	"us-central":    "NA-Central",
	"uscentral":     "NA-Central",
	"texas":         "NA-Central",
	"dallas":        "NA-Central",
	"us-west":       "NA-West",
	"uswest":        "NA-West",
	"california":    "NA-West",
	"brazil":        "SA-East",
	"sa":            "SA-East",
	"south-america": "SA-East",
	"sao-paulo":     "SA-East",
	"eu":            "EU-West",
	"europe":        "EU-West",
	"uk":            "EU-West",
	"london":        "EU-West",
	"germany":       "EU-Central",
	"frankfurt":     "EU-Central",
	"middle-east":   "ME",
	"dubai":         "ME",
	"mumbai":        "India",
	"japan":         "Asia-East",
	"tokyo":         "Asia-East",
	"korea":         "Asia-East",
	"asia":          "Asia-East",
	"sea":           "Asia-SE",
	"southeast-asia": "Asia-SE",
	"singapore":     "Asia-SE",
	"oceania":       "OCE",
	"australia":     "OCE",
	"sydney":        "OCE",
	"south-africa":  "Africa",
	"johannesburg":  "Africa",
}

// countryToRegion maps ISO 3166-1 alpha-2 country codes to the region
// most players from that country land on. Deliberately coarse.
var countryToRegion = map[string]string{
	"US": "NA-Central",
	"CA": "NA-East",
	"MX": "NA-Central",
	"BR": "SA-East",
	"AR": "SA-East",
	"CL": "SA-East",
	"CO": "SA-East",
	"PE": "SA-East",
	"GB": "EU-West",
	"IE": "EU-West",
	"FR": "EU-West",
	"ES": "EU-West",
	"PT": "EU-West",
	"NL": "EU-West",
	"BE": "EU-West",
	"DE": "EU-Central",
	"AT": "EU-Central",
	"CH": "EU-Central",
	"PL": "EU-Central",
	"CZ": "EU-Central",
	"IT": "EU-Central",
	"SE": "EU-Central",
	"NO": "EU-Central",
	"DK": "EU-Central",
	"FI": "EU-Central",
	"UA": "EU-Central",
	"RU": "EU-Central",
	"TR": "ME",
	"AE": "ME",
	"SA": "ME",
	"IL": "ME",
	"QA": "ME",
	"EG": "ME",
	"IN": "India",
	"PK": "India",
	"BD": "India",
	"LK": "India",
	"JP": "Asia-East",
	"KR": "Asia-East",
	"TW": "Asia-East",
	"HK": "Asia-East",
	"CN": "Asia-East",
	"SG": "Asia-SE",
	"MY": "Asia-SE",
	"TH": "Asia-SE",
	"VN": "Asia-SE",
	"PH": "Asia-SE",
	"ID": "Asia-SE",
	"AU": "OCE",
	"NZ": "OCE",
	"ZA": "Africa",
	"NG": "Africa",
	"KE": "Africa",
}

// byFoldedKey is built once from the registry for case-insensitive lookup.
var byFoldedKey = func() map[string]string {
	m := make(map[string]string, len(registry))
	for _, r := range registry {
		m[fold(r.Key)] = r.Key
	}
	return m
}()

// fold normalizes free text for matching: lowercase, trimmed, with
// spaces and underscores collapsed to hyphens.
func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.Join(strings.Fields(s), "-")
	return s
}

// All returns a copy of the registry.
func All() []Region {
	out := make([]Region, len(registry))
	copy(out, registry)
	return out
}

// Keys returns the canonical region keys in registry order.
func Keys() []string {
	out := make([]string, len(registry))
	for i, r := range registry {
		out[i] = r.Key
	}
	return out
}

// Normalize matches free text against canonical keys and known
// aliases, case-insensitively. The second return is false when the
// input does not resolve.
func Normalize(input string) (string, bool) {
	f := fold(input)
	if f == "" {
		return "", false
	}
	if key, ok := byFoldedKey[f]; ok {
		return key, true
	}
	if key, ok := aliases[f]; ok {
		return key, true
	}
	return "", false
}

// IsValidPingRegion reports whether key is an exact canonical key.
func IsValidPingRegion(key string) bool {
	_, ok := byFoldedKey[fold(key)]
	return ok && byFoldedKey[fold(key)] == key
}

// FromCountry maps an ISO country code to a region.
func FromCountry(countryCode string) (string, bool) {
	key, ok := countryToRegion[strings.ToUpper(strings.TrimSpace(countryCode))]
	return key, ok
}

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// Nearest returns the region whose reference point is closest to the
// given coordinates. Invalid or non-finite coordinates do not resolve.
func Nearest(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return "", false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", false
	}
	best := ""
	bestDist := math.MaxFloat64
	for _, r := range registry {
		if d := haversineKm(lat, lon, r.Latitude, r.Longitude); d < bestDist {
			best = r.Key
			bestDist = d
		}
	}
	return best, best != ""
}

// Resolver is one stage of the resolution cascade: a pure function
// returning a canonical key, or false when its signal is absent.
type Resolver func() (string, bool)

// Resolve runs resolvers in order and returns the first hit.
func Resolve(resolvers ...Resolver) (string, bool) {
	for _, r := range resolvers {
		if key, ok := r(); ok {
			return key, true
		}
	}
	return "", false
}

// ResolvePlayer applies the standard cascade for deriving a player's
// region from partial signals: explicit declaration, then coordinates,
// then country.
func ResolvePlayer(explicit string, lat, lon *float64, country string) (string, bool) {
	return Resolve(
		func() (string, bool) { return Normalize(explicit) },
		func() (string, bool) {
			if lat == nil || lon == nil {
				return "", false
			}
			return Nearest(*lat, *lon)
		},
		func() (string, bool) { return FromCountry(country) },
	)
}
