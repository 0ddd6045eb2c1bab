package cli

import (
	"fmt"
	"strings"

	"github.com/ehr/opdflow/internal/flowengine"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

// rowSpec is one repeatable row flag, written as comma separated
// field=value pairs. A leading bare token sets the row's primary field,
// so "J06.9,description=Acute URI" is a diagnosis with code J06.9.
type rowSpec map[string]string

// parsedRow keeps the pairs in the order given.
type parsedRow struct {
	keys   []string
	values rowSpec
}

func parseRow(raw, primary string) (parsedRow, error) {
	row := parsedRow{values: rowSpec{}}
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			if i != 0 || primary == "" {
				return row, fmt.Errorf("row %q: expected field=value, got %q", raw, part)
			}
			key, value = primary, part
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return row, fmt.Errorf("row %q: empty field name", raw)
		}
		if _, dup := row.values[key]; !dup {
			row.keys = append(row.keys, key)
		}
		row.values[key] = strings.TrimSpace(value)
	}
	if len(row.keys) == 0 {
		return row, fmt.Errorf("empty row")
	}
	return row, nil
}

// addRows appends one engine row per raw value and fills its fields.
func addRows(eng *flowengine.Engine, kind flowmodel.ActionKind, c flowengine.Collection, primary string, raws []string, existing int) error {
	for i, raw := range raws {
		row, err := parseRow(raw, primary)
		if err != nil {
			return fmt.Errorf("--%s: %w", flagForCollection(c), err)
		}
		if err := eng.AddRow(kind, c); err != nil {
			return err
		}
		idx := existing + i
		for _, key := range row.keys {
			if err := eng.SetRowField(kind, c, idx, key, row.values[key]); err != nil {
				return fmt.Errorf("--%s: %w", flagForCollection(c), err)
			}
		}
	}
	return nil
}

func flagForCollection(c flowengine.Collection) string {
	switch c {
	case flowengine.CollectionDiagnoses:
		return "diagnosis"
	case flowengine.CollectionProcedures:
		return "procedure"
	case flowengine.CollectionLabRequests:
		return "lab"
	case flowengine.CollectionRadiologyRequests:
		return "radiology"
	case flowengine.CollectionMedications:
		return "medication"
	}
	return string(c)
}

// vitalInput is one --vital TYPE=VALUE[:UNIT] or --bp SYS/DIA[/MAP].
type vitalInput struct {
	vitalType string
	fields    [][2]string
}

func parseVital(raw string) (vitalInput, error) {
	typ, rest, ok := strings.Cut(raw, "=")
	typ = normalizeVitalType(typ)
	if !ok || typ == "" || strings.TrimSpace(rest) == "" {
		return vitalInput{}, fmt.Errorf("--vital %q: expected TYPE=VALUE[:UNIT]", raw)
	}
	if typ == flowmodel.VitalBloodPressure {
		return parseBloodPressure(rest)
	}
	in := vitalInput{vitalType: typ}
	value, unit, hasUnit := strings.Cut(rest, ":")
	in.fields = append(in.fields, [2]string{"value", strings.TrimSpace(value)})
	if hasUnit && strings.TrimSpace(unit) != "" {
		in.fields = append(in.fields, [2]string{"unit", strings.TrimSpace(unit)})
	}
	return in, nil
}

func parseBloodPressure(raw string) (vitalInput, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return vitalInput{}, fmt.Errorf("--bp %q: expected SYSTOLIC/DIASTOLIC[/MAP]", raw)
	}
	in := vitalInput{vitalType: flowmodel.VitalBloodPressure}
	in.fields = append(in.fields,
		[2]string{"systolic", strings.TrimSpace(parts[0])},
		[2]string{"diastolic", strings.TrimSpace(parts[1])},
	)
	if len(parts) == 3 {
		in.fields = append(in.fields, [2]string{"meanArterialPressure", strings.TrimSpace(parts[2])})
	}
	return in, nil
}

func normalizeVitalType(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "BP":
		return flowmodel.VitalBloodPressure
	case "HR", "PULSE":
		return flowmodel.VitalHeartRate
	case "TEMP":
		return flowmodel.VitalTemperature
	case "RR":
		return flowmodel.VitalRespiratoryRate
	case "SPO2":
		return flowmodel.VitalOxygenSaturation
	}
	return s
}

// fillVitals writes inputs into the vitals rows. The draft always starts
// with one empty row, which takes the first input.
func fillVitals(eng *flowengine.Engine, inputs []vitalInput) error {
	kind := flowmodel.ActionRecordVitals
	c := flowengine.CollectionVitals
	for i, in := range inputs {
		if i > 0 {
			if err := eng.AddRow(kind, c); err != nil {
				return err
			}
		}
		if err := eng.SetRowField(kind, c, i, "vitalType", in.vitalType); err != nil {
			return err
		}
		for _, f := range in.fields {
			if err := eng.SetRowField(kind, c, i, f[0], f[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
