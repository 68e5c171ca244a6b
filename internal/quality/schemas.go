package quality

import (
	"github.com/npbw/visitor-pipeline/internal/sensor"
	"github.com/npbw/visitor-pipeline/internal/visitorcenter"
)

// SensorSchema derives the expected sensor-upload columns from the
// hardware mapping asset: every raw header the reconciler knows how to
// rename plus the known export artifacts it drops. All counts are
// integers.
func SensorSchema(m *sensor.Mapping) Schema {
	expected := []string{"Time"}
	var counts []string
	for _, r := range m.Renames {
		expected = append(expected, r.Raw)
		counts = append(counts, r.Raw)
	}
	for _, d := range m.Drops {
		expected = append(expected, d)
		counts = append(counts, d)
	}
	return Schema{
		TimeColumn: "Time",
		Expected:   expected,
		IntColumns: counts,
	}
}

// VisitorCenterSchema is the fixed column contract of the daily
// visitor-center workbook.
func VisitorCenterSchema() Schema {
	counts := []string{
		visitorcenter.ColBesuchszahlenHEH,
		"Besuchszahlen_HZW",
		"Besuchszahlen_WGM",
		visitorcenter.ColParkplHEHPKW,
		"Parkpl_HEH_BUS",
		"Parkpl_HZW_PKW",
		"Parkpl_HZW_BUS",
	}
	flags := []string{
		"Laubfärbung",
		visitorcenter.ColSchulferienBayern,
		visitorcenter.ColSchulferienCZ,
		visitorcenter.ColFeiertagBayern,
		visitorcenter.ColFeiertagCZ,
		"HEH_geoeffnet",
		"HZW_geoeffnet",
		visitorcenter.ColWGMGeoeffnet,
		"Lusenschutzhaus_geoeffnet",
		"Racheldiensthuette_geoeffnet",
		visitorcenter.ColWaldschmidthaus,
		"Falkensteinschutzhaus_geoeffnet",
		"Schwellhaeusl_geoeffnet",
	}
	floats := []string{
		"Temperatur",
		"Niederschlagsmenge",
		"Schneehoehe",
		"GS mit",
		"GS max",
	}

	expected := []string{"Datum", "Wochentag"}
	expected = append(expected, counts...)
	expected = append(expected, flags...)
	expected = append(expected, floats...)

	return Schema{
		TimeColumn:    "Datum",
		Expected:      expected,
		IntColumns:    counts,
		BinaryColumns: flags,
		FloatColumns:  floats,
	}
}
