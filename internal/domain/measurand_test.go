package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMeasurand(t *testing.T) {
	samples := []SampledValue{
		{Measurand: "Voltage", Value: "230", Context: "Sample.Periodic", Unit: "V"},
		{Measurand: "SOC", Value: "64", Context: "Sample.Periodic", Unit: "Percent"},
		{Measurand: "Voltage", Value: "231", Context: "Sample.Clock", Unit: "V"},
	}

	t.Run("first match wins", func(t *testing.T) {
		got, ok := ExtractMeasurand(samples, MeasurandVoltage)
		require.True(t, ok)
		assert.Equal(t, MeasurandSample{Name: MeasurandVoltage, Value: "230", Context: "Sample.Periodic", Unit: "V"}, got)
	})

	t.Run("exact case-sensitive match", func(t *testing.T) {
		_, ok := ExtractMeasurand([]SampledValue{{Measurand: "voltage", Value: "1"}}, MeasurandVoltage)
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		got, ok := ExtractMeasurand(samples, MeasurandRPM)
		assert.False(t, ok)
		assert.Equal(t, MeasurandSample{}, got)
	})

	t.Run("empty samples", func(t *testing.T) {
		_, ok := ExtractMeasurand(nil, MeasurandVoltage)
		assert.False(t, ok)
	})

	t.Run("missing fields stay empty", func(t *testing.T) {
		got, ok := ExtractMeasurand([]SampledValue{{Measurand: "Temperature", Value: "31.5"}}, MeasurandTemperature)
		require.True(t, ok)
		assert.Equal(t, "31.5", got.Value)
		assert.Empty(t, got.Context)
		assert.Empty(t, got.Unit)
	})
}

func TestExtractKnownMeasurands(t *testing.T) {
	samples := []SampledValue{
		{Measurand: "Energy.Active.Import.Register", Value: "1520", Unit: "Wh"},
		{Measurand: "Power.Active.Import", Value: "7000", Unit: "W"},
		{Measurand: "Current.Import", Value: "32", Unit: "A"},
	}

	got := ExtractKnownMeasurands(samples)

	assert.Len(t, got, 2)
	assert.Equal(t, "1520", got[MeasurandEnergyActiveImport].Value)
	assert.Equal(t, "32", got[MeasurandCurrentImport].Value)
	assert.Nil(t, ExtractKnownMeasurands(nil))
	assert.Nil(t, ExtractKnownMeasurands([]SampledValue{{Measurand: "Frequency", Value: "50"}}))
}

func TestSampledValue_UnmarshalJSON(t *testing.T) {
	var got []SampledValue
	err := json.Unmarshal([]byte(`[
		{"measurand":"Voltage","value":"230","context":"Sample.Periodic","unit":"V"},
		{"measurand":"SOC","value":64.5},
		{"value":"1"}
	]`), &got)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, SampledValue{Measurand: "Voltage", Value: "230", Context: "Sample.Periodic", Unit: "V"}, got[0])
	assert.Equal(t, "64.5", got[1].Value)
	assert.Empty(t, got[2].Measurand)
}

func TestMeasurand_Column(t *testing.T) {
	assert.Equal(t, "current_import", MeasurandCurrentImport.Column())
	assert.Equal(t, "vehicle_soc", MeasurandSoC.Column())
	assert.Equal(t, "energy_active_import", MeasurandEnergyActiveImport.Column())
	assert.Equal(t, "power_active_import", Measurand("Power.Active.Import").Column())
	assert.Len(t, KnownMeasurands, 9)
}
