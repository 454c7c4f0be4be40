package markets

import "geolift/domain/experiment"

// usDMAs are the top 20 US designated market areas with approximate
// characteristics: TV households (millions), median household income ($k),
// broadband penetration (%) and an e-commerce spend index (US = 100).
var usDMAs = []experiment.Market{
	{ID: "new_york", Name: "New York, NY", Characteristics: []float64{7.7, 83, 91, 118}},
	{ID: "los_angeles", Name: "Los Angeles, CA", Characteristics: []float64{5.8, 80, 90, 112}},
	{ID: "chicago", Name: "Chicago, IL", Characteristics: []float64{3.5, 75, 89, 104}},
	{ID: "dallas_fort_worth", Name: "Dallas-Fort Worth, TX", Characteristics: []float64{3.0, 72, 88, 103}},
	{ID: "houston", Name: "Houston, TX", Characteristics: []float64{2.6, 69, 86, 99}},
	{ID: "philadelphia", Name: "Philadelphia, PA", Characteristics: []float64{3.0, 74, 89, 102}},
	{ID: "washington_dc", Name: "Washington, DC", Characteristics: []float64{2.6, 106, 93, 121}},
	{ID: "miami", Name: "Miami-Fort Lauderdale, FL", Characteristics: []float64{1.7, 62, 87, 101}},
	{ID: "atlanta", Name: "Atlanta, GA", Characteristics: []float64{2.6, 71, 88, 102}},
	{ID: "phoenix", Name: "Phoenix, AZ", Characteristics: []float64{2.1, 70, 89, 100}},
	{ID: "boston", Name: "Boston, MA", Characteristics: []float64{2.5, 94, 92, 116}},
	{ID: "san_francisco", Name: "San Francisco-Oakland, CA", Characteristics: []float64{2.6, 116, 94, 128}},
	{ID: "detroit", Name: "Detroit, MI", Characteristics: []float64{1.9, 63, 86, 94}},
	{ID: "minneapolis", Name: "Minneapolis-St. Paul, MN", Characteristics: []float64{1.8, 84, 91, 107}},
	{ID: "tampa", Name: "Tampa-St. Petersburg, FL", Characteristics: []float64{2.0, 62, 88, 97}},
	{ID: "denver", Name: "Denver, CO", Characteristics: []float64{1.8, 85, 92, 110}},
	{ID: "seattle", Name: "Seattle-Tacoma, WA", Characteristics: []float64{2.0, 97, 93, 119}},
	{ID: "portland", Name: "Portland, OR", Characteristics: []float64{1.3, 78, 91, 106}},
	{ID: "las_vegas", Name: "Las Vegas, NV", Characteristics: []float64{0.9, 66, 88, 98}},
	{ID: "austin", Name: "Austin, TX", Characteristics: []float64{1.0, 86, 92, 111}},
}

// DefaultTable returns the built-in table of the top 20 US DMAs.
func DefaultTable() *Table {
	t, err := NewTable(usDMAs)
	if err != nil {
		panic(err)
	}
	return t
}
