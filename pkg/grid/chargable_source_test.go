package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestBattery() *ChargableSource {
	// 120V, 1200W sourcing, 600W charging, 10Wh capacity, 90% charge
	// efficiency, autoswitch-to-sourcing below 20% charge.
	return NewChargableSource(120, 120, 1200, 600, 10, 0.9, 0, 0, 0.2)
}

func TestChargableSource_StartsIdleAndFull(t *testing.T) {
	b := newTestBattery()
	assert.Equal(t, 10.0, b.GetCharge())
	assert.False(t, b.ParentSwitchedIn())
	assert.False(t, b.ChildSwitchedIn())
	assert.False(t, b.IsRunning())
}

func TestChargableSource_AutoswitchEntersChargingWhenNotFull(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 9 // below max, no shortfall pressure to source

	b.AutoswitchStep(0)
	assert.True(t, b.ChildSwitchedIn())
	assert.False(t, b.ParentSwitchedIn())
}

func TestChargableSource_AutoswitchEntersSourcingOnShortfallAboveThreshold(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 5 // 50% charge, above the 20% threshold

	b.AutoswitchStep(3) // this tick's projected unmet demand
	assert.True(t, b.ParentSwitchedIn())
	assert.False(t, b.ChildSwitchedIn())
}

func TestChargableSource_AutoswitchChargesBelowThresholdDespiteShortfall(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 1 // 10%, below threshold

	b.AutoswitchStep(3)
	// below threshold, even with a shortfall: enters charging instead since
	// chargeWh < maxChargeWh.
	assert.True(t, b.ChildSwitchedIn())
}

func TestChargableSource_SourcingLeavesWhenDepleted(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 5
	b.AutoswitchStep(1) // enters SOURCING
	assert.True(t, b.ParentSwitchedIn())

	b.chargeWh = 0
	b.AutoswitchStep(1)
	assert.False(t, b.ParentSwitchedIn())
}

func TestChargableSource_ChargingLeavesWhenFull(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 9
	b.AutoswitchStep(0)
	assert.True(t, b.ChildSwitchedIn())

	b.chargeWh = 10
	b.AutoswitchStep(0)
	assert.False(t, b.ChildSwitchedIn())
}

func TestChargableSource_SetToChargingForcesStateRegardlessOfAutoswitch(t *testing.T) {
	b := newTestBattery()
	b.SetParentSwitchedIn(true)
	assert.True(t, b.ParentSwitchedIn())

	b.SetToCharging()
	assert.True(t, b.ChildSwitchedIn())
	assert.False(t, b.ParentSwitchedIn())
}

func TestChargableSource_IntegrateChargeDischargesWhileSourcing(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 5
	b.SetParentSwitchedIn(true)
	b.Deliver(10, 120) // 1200W output

	// 3.6s at 1200W draws 1200 * (3600/3.6e6)h = 1.2Wh.
	b.IntegrateCharge(3_600)
	assert.InDelta(t, 5.0-1.2, b.GetCharge(), 1e-9)
}

func TestChargableSource_IntegrateChargeFiresEmptyOnceOnDepletion(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 1
	b.SetParentSwitchedIn(true)
	b.Deliver(10, 120) // 1200W output, drains 1Wh in 3 seconds

	var empties int
	b.OnChargeEmpty(func(*ChargableSource) { empties++ })

	b.IntegrateCharge(3_000) // ~1Wh drawn over 3s, fully depletes
	assert.Equal(t, 0.0, b.GetCharge())
	assert.Equal(t, 1, empties)
	assert.False(t, b.ParentSwitchedIn()) // left SOURCING on depletion

	// autoswitch is enabled and charge is below max, so the battery
	// immediately starts recharging the same tick.
	assert.True(t, b.ChildSwitchedIn())
}

func TestChargableSource_IntegrateChargeChargesWhileCharging(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 0
	b.SetToCharging()
	b.finalizeCharging(5, 120) // 600W input

	// 3.6s at 600W and 90% efficiency stores 600 * 0.9 * (3600/3.6e6)h = 0.54Wh.
	b.IntegrateCharge(3_600)
	assert.InDelta(t, 0.54, b.GetCharge(), 1e-9)
}

func TestChargableSource_IntegrateChargeClampsAtCapacity(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 9.9
	b.SetToCharging()
	b.finalizeCharging(5, 120)

	b.IntegrateCharge(3_600_000)
	assert.Equal(t, 10.0, b.GetCharge())
}

func TestChargableSource_ChargeLowFiresOnDownwardThresholdCrossing(t *testing.T) {
	b := newTestBattery()
	b.chargeWh = 2.5 // 25%, above the 20% threshold
	b.SetParentSwitchedIn(true)
	b.Deliver(10, 120) // 1200W output

	var lows int
	b.OnChargeLow(func(*ChargableSource) { lows++ })

	// Drain from 25% to below the 20% threshold in one step.
	b.IntegrateCharge(1_800) // 1200W * (1800/3.6e6)h = 0.6Wh drawn
	assert.InDelta(t, 1.9, b.GetCharge(), 1e-9)
	assert.Equal(t, 1, lows)

	// Staying below threshold does not refire.
	b.IntegrateCharge(1_800)
	assert.Equal(t, 1, lows)
}

func TestChargableSource_MaxOutputCurrentGatedBySourcing(t *testing.T) {
	b := newTestBattery()
	assert.Equal(t, 0.0, b.MaxOutputCurrent(120)) // idle

	b.SetParentSwitchedIn(true)
	assert.InDelta(t, 10.0, b.MaxOutputCurrent(120), 1e-9)
}

func TestChargableSource_ChargingRequestedCurrentGatedByCharging(t *testing.T) {
	b := newTestBattery()
	assert.Equal(t, 0.0, b.chargingRequestedCurrent(120)) // idle

	b.SetToCharging()
	assert.InDelta(t, 5.0, b.chargingRequestedCurrent(120), 1e-9)
}

func TestChargableSource_ShedReducesChargingFractionProportionally(t *testing.T) {
	b := newTestBattery()
	b.SetToCharging() // wants 5A charging

	shed := b.shed(120, 2) // shed 2 of 5A
	assert.Equal(t, 2.0, shed)
	assert.InDelta(t, 3.0, b.chargingRequestedCurrent(120), 1e-9)
}

func TestChargableSource_ShedBeyondOwnCurrentClampsToZero(t *testing.T) {
	b := newTestBattery()
	b.SetToCharging()

	shed := b.shed(120, 100)
	assert.Equal(t, 5.0, shed)
	assert.Equal(t, 0.0, b.chargingRequestedCurrent(120))
}

func TestChargableSource_ShedNoopWhenNotCharging(t *testing.T) {
	b := newTestBattery()
	assert.Equal(t, 0.0, b.shed(120, 5))
}

func TestChargableSource_ResetForTickRestoresFullChargingFraction(t *testing.T) {
	b := newTestBattery()
	b.SetToCharging()
	b.shed(120, 5) // fully shed this tick

	b.ResetForTick()
	assert.InDelta(t, 5.0, b.chargingRequestedCurrent(120), 1e-9)
}
