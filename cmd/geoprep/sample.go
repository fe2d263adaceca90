package main

import (
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tingold/geoprep"
	"github.com/tingold/geoprep/dataset"
)

type city struct {
	Name       string
	Country    string
	Longitude  float64
	Latitude   float64
	Population int64
	Capital    bool
}

var cities = []city{
	{"Tokyo", "Japan", 139.6917, 35.6895, 13960000, true},
	{"New York", "United States", -73.9857, 40.7484, 8336817, false},
	{"London", "United Kingdom", -0.1276, 51.5074, 8982000, true},
	{"Paris", "France", 2.3522, 48.8566, 2161000, true},
	{"Beijing", "China", 116.4074, 39.9042, 21540000, true},
	{"Moscow", "Russia", 37.6173, 55.7558, 12615000, true},
	{"São Paulo", "Brazil", -46.6333, -23.5505, 12300000, false},
	{"Mumbai", "India", 72.8777, 19.0760, 12400000, false},
	{"Los Angeles", "United States", -118.2437, 34.0522, 3971883, false},
	{"Shanghai", "China", 121.4737, 31.2304, 24870000, false},
	{"Istanbul", "Turkey", 28.9784, 41.0082, 15520000, false},
	{"Buenos Aires", "Argentina", -58.3816, -34.6037, 3075646, true},
	{"Cairo", "Egypt", 31.2357, 30.0444, 10230000, true},
	{"Sydney", "Australia", 151.2093, -33.8688, 5312000, false},
	{"Berlin", "Germany", 13.4050, 52.5200, 3669491, true},
}

// Field names are deliberately unclean so the sample exercises clean.
var citySchema = dataset.Schema{
	Fields: []dataset.Field{
		{Name: "City Name", Type: dataset.FieldString},
		{Name: "Country", Type: dataset.FieldString},
		{Name: "Population (2020)", Type: dataset.FieldInteger},
		{Name: "Is Capital?", Type: dataset.FieldBoolean},
	},
	GeometryType: "Point",
	SRID:         4326,
}

func cityFeatures() []*dataset.Feature {
	features := make([]*dataset.Feature, len(cities))
	for i, c := range cities {
		features[i] = &dataset.Feature{
			FID: int64(i + 1),
			Attributes: map[string]any{
				"City Name":         c.Name,
				"Country":           c.Country,
				"Population (2020)": c.Population,
				"Is Capital?":       c.Capital,
			},
			Geometry: dataset.NewGeometry(orb.Point{c.Longitude, c.Latitude}),
		}
	}
	return features
}

func (a *app) sampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sample <path>",
		Short: "Write a small world cities dataset",
		Long: `Writes major world cities as a WGS84 point layer named world_cities.
The format follows the extension: .geojson, .fgb or .gpkg. The file must
not exist yet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := geoprep.DefaultStore().Create(args[0])
			if err != nil {
				return err
			}
			defer out.Close()

			l, err := out.CreateLayer("world_cities", citySchema)
			if err != nil {
				return err
			}
			if err := l.Replace(citySchema, cityFeatures()); err != nil {
				return err
			}
			if err := out.Commit(); err != nil {
				return err
			}
			a.logger.Info("Sample written",
				zap.String("path", args[0]),
				zap.Int("features", len(cities)))
			printHandle(cmd, args[0])
			return nil
		},
	}
}
