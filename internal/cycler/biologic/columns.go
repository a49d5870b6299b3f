package biologic

import "github.com/oddvarlia/cellcycler/internal/celldata"

// Vendor column codes are mapped to canonical Sample fields per module schema
// version. The instrument firmware has reshuffled codes between versions, so
// the decoder branches on the version field read from the module header
// rather than assuming one layout.

type columnKind int

const (
	kindField columnKind = iota
	kindCombinedCapacity
	kindAux
)

type vendorColumn struct {
	kind  columnKind
	field celldata.Column // valid for kindField
	aux   string          // valid for kindAux
}

var columnsV0 = map[uint16]vendorColumn{
	4:  {kind: kindField, field: celldata.ColTestTime},
	6:  {kind: kindField, field: celldata.ColVoltage},
	7:  {kind: kindField, field: celldata.ColCurrent},
	8:  {kind: kindField, field: celldata.ColStepIndex},
	9:  {kind: kindField, field: celldata.ColCycleIndex},
	11: {kind: kindField, field: celldata.ColChargeEnergy},
	12: {kind: kindField, field: celldata.ColDischargeEnergy},
	13: {kind: kindField, field: celldata.ColInternalResistance},
	14: {kind: kindField, field: celldata.ColStepTime},
	20: {kind: kindCombinedCapacity},
	21: {kind: kindAux, aux: "temperature"},
}

// Version 2 moved the cycle counter to code 10 and the combined capacity
// accumulator to code 23; everything else kept its slot.
var columnsV2 = map[uint16]vendorColumn{
	4:  {kind: kindField, field: celldata.ColTestTime},
	6:  {kind: kindField, field: celldata.ColVoltage},
	7:  {kind: kindField, field: celldata.ColCurrent},
	8:  {kind: kindField, field: celldata.ColStepIndex},
	10: {kind: kindField, field: celldata.ColCycleIndex},
	11: {kind: kindField, field: celldata.ColChargeEnergy},
	12: {kind: kindField, field: celldata.ColDischargeEnergy},
	13: {kind: kindField, field: celldata.ColInternalResistance},
	14: {kind: kindField, field: celldata.ColStepTime},
	23: {kind: kindCombinedCapacity},
	21: {kind: kindAux, aux: "temperature"},
}

var columnsByVersion = map[uint32]map[uint16]vendorColumn{
	0: columnsV0,
	2: columnsV2,
}
