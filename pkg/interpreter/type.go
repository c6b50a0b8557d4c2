package interpreter

import "errors"

var ErrNumericExtraction = errors.New("no number in reading content")

// Reading is one OBIS code with the raw text between its parentheses.
type Reading struct {
	Code    string `json:"obis_code"`
	Content string `json:"content"`
}

// OBIS codes the exporter understands.
const (
	CodeSerialNumber    = "0.0.0"
	CodeFirmwareVersion = "0.2.1"
	CodeEnergyKWh       = "1.8.0"
	CodePhaseFailuresL1 = "C.7.1"
	CodePhaseFailuresL2 = "C.7.2"
	CodePhaseFailuresL3 = "C.7.3"
	CodeHeatEnergyMWh   = "6.8"
	CodeHeatVolumeM3    = "6.26"
	CodePowerOnHours    = "6.31"
	CodeHeatFlowHours   = "9.31"
)

type valueKind int

const (
	fractional valueKind = iota
	integral
)

var numericCodes = map[string]valueKind{
	CodeEnergyKWh:       fractional,
	CodeHeatEnergyMWh:   fractional,
	CodeHeatVolumeM3:    fractional,
	CodePhaseFailuresL1: integral,
	CodePhaseFailuresL2: integral,
	CodePhaseFailuresL3: integral,
	CodePowerOnHours:    integral,
	CodeHeatFlowHours:   integral,
}
