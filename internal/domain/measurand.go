package domain

import (
	"encoding/json"
	"strings"
)

// Measurand is an OCPP sampled-value quantity name.
type Measurand string

const (
	MeasurandTemperature        Measurand = "Temperature"
	MeasurandVoltage            Measurand = "Voltage"
	MeasurandCurrentImport      Measurand = "Current.Import"
	MeasurandCurrentExport      Measurand = "Current.Export"
	MeasurandPowerFactor        Measurand = "Power.Factor"
	MeasurandPowerOffered       Measurand = "Power.Offered"
	MeasurandRPM                Measurand = "RPM"
	MeasurandSoC                Measurand = "SOC"
	MeasurandEnergyActiveImport Measurand = "Energy.Active.Import.Register"
)

// KnownMeasurands lists the measurands flattened onto every record, in column order.
var KnownMeasurands = []Measurand{
	MeasurandTemperature,
	MeasurandVoltage,
	MeasurandCurrentImport,
	MeasurandCurrentExport,
	MeasurandPowerFactor,
	MeasurandPowerOffered,
	MeasurandRPM,
	MeasurandSoC,
	MeasurandEnergyActiveImport,
}

var measurandColumns = map[Measurand]string{
	MeasurandTemperature:        "temperature",
	MeasurandVoltage:            "voltage",
	MeasurandCurrentImport:      "current_import",
	MeasurandCurrentExport:      "current_export",
	MeasurandPowerFactor:        "power_factor",
	MeasurandPowerOffered:       "power_offered",
	MeasurandRPM:                "rpm",
	MeasurandSoC:                "vehicle_soc",
	MeasurandEnergyActiveImport: "energy_active_import",
}

// Column is the store column prefix for the measurand. The value lives in
// <column>, context and unit in <column>_context and <column>_unit.
func (m Measurand) Column() string {
	if c, ok := measurandColumns[m]; ok {
		return c
	}
	return strings.ToLower(strings.NewReplacer(".", "_").Replace(string(m)))
}

// SampledValue is one entry of a meterValue's sampledValue list.
type SampledValue struct {
	Measurand string
	Value     string
	Context   string
	Unit      string
}

// UnmarshalJSON accepts numeric values as well as the strings OCPP specifies,
// since some firmware reports numbers unquoted.
func (s *SampledValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Measurand json.RawMessage `json:"measurand"`
		Value     json.RawMessage `json:"value"`
		Context   json.RawMessage `json:"context"`
		Unit      json.RawMessage `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Measurand = scalarString(raw.Measurand)
	s.Value = scalarString(raw.Value)
	s.Context = scalarString(raw.Context)
	s.Unit = scalarString(raw.Unit)
	return nil
}

// MeasurandSample is the (value, context, unit) triple extracted for one measurand.
// Empty strings stand for fields the charger did not report.
type MeasurandSample struct {
	Name    Measurand `json:"name"`
	Value   string    `json:"value,omitempty"`
	Context string    `json:"context,omitempty"`
	Unit    string    `json:"unit,omitempty"`
}

// ExtractMeasurand returns the first sample whose measurand equals name
// exactly. Later duplicates are ignored, matching the order the charger
// reported them in.
func ExtractMeasurand(samples []SampledValue, name Measurand) (MeasurandSample, bool) {
	for _, s := range samples {
		if s.Measurand == string(name) {
			return MeasurandSample{
				Name:    name,
				Value:   s.Value,
				Context: s.Context,
				Unit:    s.Unit,
			}, true
		}
	}
	return MeasurandSample{}, false
}

// ExtractKnownMeasurands runs ExtractMeasurand for every known measurand.
// Returns nil when none matched.
func ExtractKnownMeasurands(samples []SampledValue) map[Measurand]MeasurandSample {
	if len(samples) == 0 {
		return nil
	}
	var out map[Measurand]MeasurandSample
	for _, m := range KnownMeasurands {
		s, ok := ExtractMeasurand(samples, m)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[Measurand]MeasurandSample, len(KnownMeasurands))
		}
		out[m] = s
	}
	return out
}
