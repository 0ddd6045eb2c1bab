package flowengine

import (
	"math"
	"strconv"
	"strings"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

var defaultVitalUnits = map[string]string{
	flowmodel.VitalBloodPressure:    "mmHg",
	flowmodel.VitalHeartRate:        "bpm",
	flowmodel.VitalTemperature:      "°C",
	flowmodel.VitalRespiratoryRate:  "breaths/min",
	flowmodel.VitalOxygenSaturation: "%",
	flowmodel.VitalWeight:           "kg",
	flowmodel.VitalHeight:           "cm",
}

// MeanArterialPressure estimates MAP as diastolic + (systolic - diastolic) / 3,
// rounded to the nearest integer.
func MeanArterialPressure(systolic, diastolic int) int {
	return diastolic + int(math.Round(float64(systolic-diastolic)/3))
}

// recomputeBloodPressure derives the display value and, unless the user
// overrode it, the MAP of a blood-pressure row.
func recomputeBloodPressure(row VitalRow) VitalRow {
	if row.VitalType != flowmodel.VitalBloodPressure {
		return row
	}
	sys := strings.TrimSpace(row.Systolic)
	dia := strings.TrimSpace(row.Diastolic)
	if sys != "" && dia != "" {
		row.Value = sys + "/" + dia
	} else {
		row.Value = ""
	}
	if row.MAPOverridden {
		return row
	}
	s, errS := strconv.Atoi(sys)
	d, errD := strconv.Atoi(dia)
	if errS != nil || errD != nil {
		row.MeanArterialPressure = ""
		return row
	}
	row.MeanArterialPressure = strconv.Itoa(MeanArterialPressure(s, d))
	return row
}
