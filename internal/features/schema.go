package features

import "github.com/npbw/visitor-pipeline/internal/weather"

// Holiday flag columns of the joined table.
const (
	ColFeiertagBayern = "Feiertag_Bayern"
	ColFeiertagCZ     = "Feiertag_CZ"

	ColDistanceBayern = "Distance_to_Nearest_Holiday_Bayern"
	ColDistanceCZ     = "Distance_to_Nearest_Holiday_CZ"
)

// ZScoreColumns are the weather characteristics whose daily maxima get
// rolling z-scores.
var ZScoreColumns = []string{
	weather.ColTemperature,
	weather.ColHumidity,
	weather.ColWindSpeed,
}

// CyclicColumns are encoded as sin/cos pairs and then dropped.
var CyclicColumns = []string{"Tag", "Hour", "Monat", "Wochentag"}

// StandardizeColumns are z-normalized with stats fitted during training.
var StandardizeColumns = []string{
	weather.ColTemperature,
	weather.ColHumidity,
	weather.ColWindSpeed,
	ColDistanceBayern,
	ColDistanceCZ,
}

// NumericFeatures is the numeric half of the model schema contract.
// Training and inference both select exactly these, in this order.
var NumericFeatures = []string{
	weather.ColTemperature,
	weather.ColHumidity,
	weather.ColWindSpeed,
	"ZScore_Daily_Max_" + weather.ColTemperature,
	"ZScore_Daily_Max_" + weather.ColHumidity,
	"ZScore_Daily_Max_" + weather.ColWindSpeed,
	ColDistanceBayern,
	ColDistanceCZ,
	"Tag_sin", "Tag_cos",
	"Monat_sin", "Monat_cos",
	"Hour_sin", "Hour_cos",
	"Wochentag_sin", "Wochentag_cos",
}

// CategoricalFeatures is the categorical half of the schema contract.
var CategoricalFeatures = []string{
	"Wochenende",
	"Laubfärbung",
	"Schulferien_Bayern",
	"Schulferien_CZ",
	ColFeiertagBayern,
	ColFeiertagCZ,
	"HEH_geoeffnet",
	"HZW_geoeffnet",
	"WGM_geoeffnet",
	"Lusenschutzhaus_geoeffnet",
	"Racheldiensthuette_geoeffnet",
	"Falkensteinschutzhaus_geoeffnet",
	"Schwellhaeusl_geoeffnet",
	"sunny", "cloudy", "rainy", "snowy", "extreme", "stormy",
	"Frühling", "Sommer", "Herbst", "Winter",
}

// Targets are the per-region hourly counts the regressors are trained
// on, plus the park-wide aggregates.
var Targets = []string{
	"traffic_abs",
	"sum_IN_abs",
	"sum_OUT_abs",
	"Lusen-Mauth-Finsterau IN", "Lusen-Mauth-Finsterau OUT",
	"Nationalparkzentrum Lusen IN", "Nationalparkzentrum Lusen OUT",
	"Rachel-Spiegelau IN", "Rachel-Spiegelau OUT",
	"Falkenstein-Schwellhäusl IN", "Falkenstein-Schwellhäusl OUT",
	"Scheuereck-Schachten-Trinkwassertalsperre IN", "Scheuereck-Schachten-Trinkwassertalsperre OUT",
	"Nationalparkzentrum Falkenstein IN", "Nationalparkzentrum Falkenstein OUT",
}

// FeatureNames returns the full model input schema, numeric then
// categorical.
func FeatureNames() []string {
	out := make([]string, 0, len(NumericFeatures)+len(CategoricalFeatures))
	out = append(out, NumericFeatures...)
	out = append(out, CategoricalFeatures...)
	return out
}
