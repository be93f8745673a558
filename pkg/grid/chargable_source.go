package grid

import "github.com/flowmesh/powergrid/internal/consts"

// ChargableSource is a Source that doubles as a Consumer: a battery with an
// autoswitch state machine cycling between IDLE, SOURCING and CHARGING.
type ChargableSource struct {
	locationID uint32
	minV, maxV float64

	maxPowerW          float64
	internalResistance float64 // accepted for constructor parity; unused in Ohm arithmetic, see DESIGN.md

	maxChargeWh            float64
	chargeWh               float64
	chargingEfficiency     float64
	autoswitchEnabled      bool
	autoswitchLowThreshold float64
	maxChargingPowerW      float64

	parentSwitchedIn bool // SOURCING
	childSwitchedIn  bool // CHARGING
	bus              *Bus

	effectiveChargingFraction float64 // reset to 1 each tick, reduced by shed

	outputCurrent     float64
	lastOutputCurrent float64
	inputCurrent      float64
	lastBusVoltage    float64

	emptyFired bool
	lowArmed   bool

	onParentSwitchIn  func(*ChargableSource)
	onParentSwitchOut func(*ChargableSource)
	onChildSwitchIn   func(*ChargableSource)
	onChildSwitchOut  func(*ChargableSource)
	onLoadChanged     func(*ChargableSource)
	onChargeLow       func(*ChargableSource)
	onChargeEmpty     func(*ChargableSource)
}

// NewChargableSource constructs a battery accepting bus voltages in
// [minV, maxV], sourcing up to maxPowerW, charging up to maxChargingPowerW,
// holding up to maxChargeWh, with the given charging efficiency and
// low-charge autoswitch threshold (fraction of maxChargeWh).
func NewChargableSource(minV, maxV, maxPowerW, maxChargingPowerW, maxChargeWh, chargingEfficiency, internalResistance float64, locationID uint32, autoswitchLowThreshold float64) *ChargableSource {
	return &ChargableSource{
		locationID:             locationID,
		minV:                   minV,
		maxV:                   maxV,
		maxPowerW:              maxPowerW,
		internalResistance:     internalResistance,
		maxChargeWh:            maxChargeWh,
		chargeWh:               maxChargeWh,
		chargingEfficiency:     chargingEfficiency,
		autoswitchEnabled:      true,
		autoswitchLowThreshold: autoswitchLowThreshold,
		maxChargingPowerW:      maxChargingPowerW,
		lowArmed:               true,

		effectiveChargingFraction: 1,
	}
}

// Kind implements both Parent and Child.
func (c *ChargableSource) Kind() Kind { return KindChargableSource }

// LocationID implements both Parent and Child.
func (c *ChargableSource) LocationID() uint32 { return c.locationID }

// IsGlobal implements both Parent and Child.
func (c *ChargableSource) IsGlobal() bool { return false }

// VoltageWindow implements both Parent and Child.
func (c *ChargableSource) VoltageWindow() (float64, float64) { return c.minV, c.maxV }

// ParentSwitchedIn reports whether the battery is currently SOURCING.
func (c *ChargableSource) ParentSwitchedIn() bool { return c.parentSwitchedIn }

func (c *ChargableSource) setParentSwitchedIn(v bool) { c.parentSwitchedIn = v }

// ChildSwitchedIn reports whether the battery is currently CHARGING.
func (c *ChargableSource) ChildSwitchedIn() bool { return c.childSwitchedIn }

func (c *ChargableSource) setChildSwitchedIn(v bool) { c.childSwitchedIn = v }

// Children implements Parent: the single bus this battery feeds when
// SOURCING.
func (c *ChargableSource) Children() []Child {
	if c.bus == nil {
		return nil
	}
	return []Child{c.bus}
}

func (c *ChargableSource) addChild(ch Child) {
	if b, ok := ch.(*Bus); ok {
		c.bus = b
	}
}

func (c *ChargableSource) removeChild(ch Child) {
	if c.bus == ch {
		c.bus = nil
	}
}

// Parents implements Child: the single bus this battery draws from when
// CHARGING.
func (c *ChargableSource) Parents() []Parent {
	if c.bus == nil {
		return nil
	}
	return []Parent{c.bus}
}

func (c *ChargableSource) addParent(p Parent) {
	if b, ok := p.(*Bus); ok {
		c.bus = b
	}
}

func (c *ChargableSource) removeParent(p Parent) {
	if c.bus == p {
		c.bus = nil
	}
}

// ConnectToBus wires this battery to bus as both a potential source and a
// potential consumer of that single bus — the one physical connection a
// battery makes.
func ConnectToBus(c *ChargableSource, bus *Bus) error {
	if err := CanConnect(c, bus); err != nil {
		return err
	}
	c.addChild(bus)
	bus.addParent(c)
	bus.addChild(c)
	return nil
}

// DisconnectFromBus reverses ConnectToBus.
func DisconnectFromBus(c *ChargableSource, bus *Bus) error {
	if c.bus == nil || c.bus != bus {
		return ErrNotConnected
	}
	bus.removeParent(c)
	bus.removeChild(c)
	c.bus = nil
	return nil
}

// SetParentSwitchedIn forces the battery into (true) or out of (false)
// SOURCING, regardless of autoswitch.
func (c *ChargableSource) SetParentSwitchedIn(in bool) {
	if in {
		c.enterSourcing()
	} else {
		c.leaveSourcing()
	}
}

// SetToCharging forces the battery into CHARGING regardless of autoswitch
// or available input current.
func (c *ChargableSource) SetToCharging() {
	c.enterCharging()
}

// SetAutoswitchEnabled toggles automatic IDLE/SOURCING/CHARGING transitions.
func (c *ChargableSource) SetAutoswitchEnabled(enabled bool) { c.autoswitchEnabled = enabled }

func (c *ChargableSource) enterSourcing() {
	if c.parentSwitchedIn {
		return
	}
	wasCharging := c.childSwitchedIn
	c.childSwitchedIn = false
	c.parentSwitchedIn = true
	if wasCharging && c.onChildSwitchOut != nil {
		c.onChildSwitchOut(c)
	}
	if c.onParentSwitchIn != nil {
		c.onParentSwitchIn(c)
	}
}

func (c *ChargableSource) leaveSourcing() {
	if !c.parentSwitchedIn {
		return
	}
	c.parentSwitchedIn = false
	c.outputCurrent = 0
	if c.onParentSwitchOut != nil {
		c.onParentSwitchOut(c)
	}
}

func (c *ChargableSource) enterCharging() {
	if c.childSwitchedIn {
		return
	}
	wasSourcing := c.parentSwitchedIn
	c.parentSwitchedIn = false
	c.childSwitchedIn = true
	c.inputCurrent = 0
	if wasSourcing && c.onParentSwitchOut != nil {
		c.onParentSwitchOut(c)
	}
	if c.onChildSwitchIn != nil {
		c.onChildSwitchIn(c)
	}
}

func (c *ChargableSource) leaveCharging() {
	if !c.childSwitchedIn {
		return
	}
	c.childSwitchedIn = false
	c.inputCurrent = 0
	if c.onChildSwitchOut != nil {
		c.onChildSwitchOut(c)
	}
}

// AutoswitchStep evaluates automatic state transitions at the start of a
// tick, using shortfallA — the circuit's unmet demand for this same tick,
// projected from this tick's own demand/capacity before any battery that is
// still IDLE has had a chance to contribute (0 if there is none).
func (c *ChargableSource) AutoswitchStep(shortfallA float64) {
	if !c.autoswitchEnabled {
		return
	}
	switch {
	case c.parentSwitchedIn:
		if c.chargeWh <= 0 {
			c.leaveSourcing()
		}
	case c.childSwitchedIn:
		if c.chargeWh >= c.maxChargeWh {
			c.leaveCharging()
		}
	default:
		frac := 0.0
		if c.maxChargeWh > 0 {
			frac = c.chargeWh / c.maxChargeWh
		}
		if shortfallA > 0 && frac >= c.autoswitchLowThreshold {
			c.enterSourcing()
		} else if c.chargeWh < c.maxChargeWh {
			c.enterCharging()
		}
	}
}

// MaxOutputCurrent returns the most current this battery could deliver at
// busVoltage while SOURCING, 0 otherwise.
func (c *ChargableSource) MaxOutputCurrent(busVoltage float64) float64 {
	if !c.parentSwitchedIn || busVoltage <= 0 {
		return 0
	}
	return c.maxPowerW / busVoltage
}

// chargingRequestedCurrent returns the current this battery would draw at
// busVoltage while CHARGING, scaled by whatever fraction of its rated
// charging power survived this tick's shedding — used for resistance,
// demand, and finalized input current.
func (c *ChargableSource) chargingRequestedCurrent(busVoltage float64) float64 {
	if !c.childSwitchedIn || busVoltage <= 0 || c.effectiveChargingFraction <= 0 {
		return 0
	}
	return c.maxChargingPowerW * c.effectiveChargingFraction / busVoltage
}

// ResetForTick resets the effective charging fraction to 1, ahead of
// resistance/apportionment computation. Called once per tick, alongside
// every Consumer's ResetForTick.
func (c *ChargableSource) ResetForTick() {
	c.effectiveChargingFraction = 1
}

// shed reduces this battery's charging draw by ampsToShed (expressed as
// current at the given bus voltage) and returns the current actually shed.
// A no-op unless the battery is CHARGING.
func (c *ChargableSource) shed(busVoltage, ampsToShed float64) float64 {
	if !c.childSwitchedIn || c.effectiveChargingFraction <= 0 || ampsToShed <= 0 {
		return 0
	}
	ownCurrent := c.maxChargingPowerW * c.effectiveChargingFraction / busVoltage
	if ampsToShed >= ownCurrent {
		c.effectiveChargingFraction = 0
		return ownCurrent
	}
	fraction := ampsToShed / ownCurrent
	c.effectiveChargingFraction -= c.effectiveChargingFraction * fraction
	return ampsToShed
}

// GetOutputCurrent returns the apportioned output current for the last tick.
func (c *ChargableSource) GetOutputCurrent() float64 { return c.outputCurrent }

// GetInputCurrent returns the charging input current for the last tick.
func (c *ChargableSource) GetInputCurrent() float64 { return c.inputCurrent }

// GetCharge returns the current stored charge, in watt-hours.
func (c *ChargableSource) GetCharge() float64 { return c.chargeWh }

// MaxChargingPowerW returns the battery's rated charging power.
func (c *ChargableSource) MaxChargingPowerW() float64 { return c.maxChargingPowerW }

// IsRunning reports whether the battery is actively delivering or drawing
// current this tick.
func (c *ChargableSource) IsRunning() bool {
	if c.parentSwitchedIn {
		return c.outputCurrent > 0
	}
	if c.childSwitchedIn {
		return c.inputCurrent > 0
	}
	return false
}

// Deliver records this battery's apportioned SOURCING output current.
func (c *ChargableSource) Deliver(amps, busVoltage float64) {
	c.outputCurrent = amps
	c.lastBusVoltage = busVoltage
	if c.outputCurrent != c.lastOutputCurrent {
		c.lastOutputCurrent = c.outputCurrent
		if c.onLoadChanged != nil {
			c.onLoadChanged(c)
		}
	}
}

// finalizeCharging records this battery's drawn charging current.
func (c *ChargableSource) finalizeCharging(amps, busVoltage float64) {
	c.inputCurrent = amps
	c.lastBusVoltage = busVoltage
}

// IntegrateCharge advances the charge store by the elapsed tick and fires
// on_charge_low/on_charge_empty on downward threshold crossings.
func (c *ChargableSource) IntegrateCharge(deltaMs float64) {
	prevFrac := 0.0
	if c.maxChargeWh > 0 {
		prevFrac = c.chargeWh / c.maxChargeWh
	}

	switch {
	case c.parentSwitchedIn:
		outputPower := c.outputCurrent * c.lastBusVoltage
		c.chargeWh -= outputPower * (deltaMs / consts.MsPerHour)
		if c.chargeWh <= 0 {
			c.chargeWh = 0
			if !c.emptyFired {
				c.emptyFired = true
				if c.onChargeEmpty != nil {
					c.onChargeEmpty(c)
				}
			}
			c.leaveSourcing()
			if c.autoswitchEnabled && c.chargeWh < c.maxChargeWh {
				c.enterCharging()
			}
		} else {
			c.emptyFired = false
		}
	case c.childSwitchedIn:
		inputPower := c.inputCurrent * c.lastBusVoltage
		c.chargeWh += inputPower * c.chargingEfficiency * (deltaMs / consts.MsPerHour)
		if c.chargeWh >= c.maxChargeWh {
			c.chargeWh = c.maxChargeWh
		}
	}

	newFrac := 0.0
	if c.maxChargeWh > 0 {
		newFrac = c.chargeWh / c.maxChargeWh
	}
	if c.lowArmed && prevFrac >= c.autoswitchLowThreshold && newFrac < c.autoswitchLowThreshold {
		c.lowArmed = false
		if c.onChargeLow != nil {
			c.onChargeLow(c)
		}
	} else if newFrac >= c.autoswitchLowThreshold {
		c.lowArmed = true
	}
}

// OnParentSwitchIn registers the callback fired when this battery enters
// SOURCING.
func (c *ChargableSource) OnParentSwitchIn(cb func(*ChargableSource)) { c.onParentSwitchIn = cb }

// OnParentSwitchOut registers the callback fired when this battery leaves
// SOURCING.
func (c *ChargableSource) OnParentSwitchOut(cb func(*ChargableSource)) { c.onParentSwitchOut = cb }

// OnChildSwitchIn registers the callback fired when this battery enters
// CHARGING.
func (c *ChargableSource) OnChildSwitchIn(cb func(*ChargableSource)) { c.onChildSwitchIn = cb }

// OnChildSwitchOut registers the callback fired when this battery leaves
// CHARGING.
func (c *ChargableSource) OnChildSwitchOut(cb func(*ChargableSource)) { c.onChildSwitchOut = cb }

// OnLoadChanged registers the callback fired when output current differs
// from the previous tick's, while SOURCING.
func (c *ChargableSource) OnLoadChanged(cb func(*ChargableSource)) { c.onLoadChanged = cb }

// OnChargeLow registers the callback fired on a downward crossing of the
// autoswitch low-charge threshold.
func (c *ChargableSource) OnChargeLow(cb func(*ChargableSource)) { c.onChargeLow = cb }

// OnChargeEmpty registers the callback fired when the charge reaches zero.
func (c *ChargableSource) OnChargeEmpty(cb func(*ChargableSource)) { c.onChargeEmpty = cb }
