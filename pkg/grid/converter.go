package grid

// Converter bridges two circuits at differing voltages: a consumer of its
// upstream (parent) bus and a source to its downstream (child) bus.
type Converter struct {
	locationID uint32
	minV, maxV float64

	maxPowerW          float64
	efficiency         float64
	internalResistance float64 // accepted for constructor parity; unused in Ohm arithmetic, see DESIGN.md

	parentSwitchedIn bool // source side (feeding downstream bus)
	childSwitchedIn  bool // consumer side (drawing from upstream bus)

	upstream   Parent // the bus this converter consumes from
	downstream Child  // the bus this converter feeds

	inputCurrent, outputCurrent        float64
	inputPower, outputPower            float64
	lastOutputCurrent                  float64
	upstreamVoltage, downstreamVoltage float64

	onParentSwitchIn  func(*Converter)
	onParentSwitchOut func(*Converter)
	onChildSwitchIn   func(*Converter)
	onChildSwitchOut  func(*Converter)
	onLoadChanged     func(*Converter)
}

// NewConverter constructs a Converter whose consumer side accepts bus
// voltages in [minV, maxV] (shared with its source side), rated at
// maxPowerW with the given conversion efficiency.
func NewConverter(minV, maxV, maxPowerW, efficiency, internalResistance float64, locationID uint32) *Converter {
	return &Converter{
		locationID:         locationID,
		minV:               minV,
		maxV:               maxV,
		maxPowerW:          maxPowerW,
		efficiency:         efficiency,
		internalResistance: internalResistance,
		parentSwitchedIn:   true,
		childSwitchedIn:    true,
	}
}

// Kind implements both Parent and Child.
func (c *Converter) Kind() Kind { return KindConverter }

// LocationID implements both Parent and Child; Converters are global.
func (c *Converter) LocationID() uint32 { return c.locationID }

// IsGlobal implements both Parent and Child.
func (c *Converter) IsGlobal() bool { return true }

// VoltageWindow implements both Parent and Child.
func (c *Converter) VoltageWindow() (float64, float64) { return c.minV, c.maxV }

// ParentSwitchedIn reports whether the converter's source (downstream) side
// is switched in.
func (c *Converter) ParentSwitchedIn() bool { return c.parentSwitchedIn }

func (c *Converter) setParentSwitchedIn(v bool) { c.parentSwitchedIn = v }

// ChildSwitchedIn reports whether the converter's consumer (upstream) side
// is switched in.
func (c *Converter) ChildSwitchedIn() bool { return c.childSwitchedIn }

func (c *Converter) setChildSwitchedIn(v bool) { c.childSwitchedIn = v }

// Children implements Parent: the single downstream bus fed by this
// converter.
func (c *Converter) Children() []Child {
	if c.downstream == nil {
		return nil
	}
	return []Child{c.downstream}
}

func (c *Converter) addChild(ch Child) { c.downstream = ch }

func (c *Converter) removeChild(ch Child) {
	if c.downstream == ch {
		c.downstream = nil
	}
}

// Parents implements Child: the single upstream bus this converter draws
// from.
func (c *Converter) Parents() []Parent {
	if c.upstream == nil {
		return nil
	}
	return []Parent{c.upstream}
}

func (c *Converter) addParent(p Parent) { c.upstream = p }

func (c *Converter) removeParent(p Parent) {
	if c.upstream == p {
		c.upstream = nil
	}
}

// DownstreamBus returns the bus this converter feeds, or nil.
func (c *Converter) DownstreamBus() *Bus {
	b, _ := c.downstream.(*Bus)
	return b
}

// MaxPowerW returns the converter's rated output power.
func (c *Converter) MaxPowerW() float64 { return c.maxPowerW }

// Efficiency returns the conversion efficiency.
func (c *Converter) Efficiency() float64 { return c.efficiency }

// MaxOutputCurrent returns the most current this converter could deliver to
// its downstream bus at busVoltage, 0 if switched out.
func (c *Converter) MaxOutputCurrent(busVoltage float64) float64 {
	if !c.parentSwitchedIn || busVoltage <= 0 {
		return 0
	}
	return c.maxPowerW / busVoltage
}

// desiredInputPower returns this converter's demand on its upstream bus:
// the downstream bus's demand at this tick's effective loads, capped at
// this converter's own rated output power, divided by efficiency.
func (c *Converter) desiredInputPower() float64 {
	if !c.childSwitchedIn {
		return 0
	}
	db := c.DownstreamBus()
	if db == nil {
		return 0
	}
	demand := db.RawDemandPower()
	out := demand
	if out > c.maxPowerW {
		out = c.maxPowerW
	}
	if c.efficiency <= 0 {
		return 0
	}
	return out / c.efficiency
}

// Deliver records this converter's apportioned output current into its
// downstream circuit for the tick (called during apportionment, mirroring a
// Source's Deliver).
func (c *Converter) Deliver(amps, busVoltage float64) {
	c.outputCurrent = amps
	c.downstreamVoltage = busVoltage
	c.outputPower = amps * busVoltage
	if c.outputCurrent != c.lastOutputCurrent {
		c.lastOutputCurrent = c.outputCurrent
		if c.onLoadChanged != nil {
			c.onLoadChanged(c)
		}
	}
}

// finalizeInput records the actual current drawn from the upstream bus this
// tick, derived from the settled output power.
func (c *Converter) finalizeInput(upstreamVoltage float64) {
	c.upstreamVoltage = upstreamVoltage
	if c.efficiency > 0 {
		c.inputPower = c.outputPower / c.efficiency
	} else {
		c.inputPower = 0
	}
	if upstreamVoltage > 0 {
		c.inputCurrent = c.inputPower / upstreamVoltage
	} else {
		c.inputCurrent = 0
	}
}

// GetInputCurrent returns the upstream-side current drawn during the last
// evaluated tick.
func (c *Converter) GetInputCurrent() float64 { return c.inputCurrent }

// GetOutputCurrent returns the downstream-side current delivered during the
// last evaluated tick.
func (c *Converter) GetOutputCurrent() float64 { return c.outputCurrent }

// GetInputPower returns the upstream-side power drawn during the last
// evaluated tick.
func (c *Converter) GetInputPower() float64 { return c.inputPower }

// GetOutputPower returns the downstream-side power delivered during the
// last evaluated tick.
func (c *Converter) GetOutputPower() float64 { return c.outputPower }

// OnParentSwitchIn registers the callback fired when the converter's source
// side switches in.
func (c *Converter) OnParentSwitchIn(cb func(*Converter)) { c.onParentSwitchIn = cb }

// OnParentSwitchOut registers the callback fired when the converter's
// source side switches out.
func (c *Converter) OnParentSwitchOut(cb func(*Converter)) { c.onParentSwitchOut = cb }

// OnChildSwitchIn registers the callback fired when the converter's
// consumer side switches in.
func (c *Converter) OnChildSwitchIn(cb func(*Converter)) { c.onChildSwitchIn = cb }

// OnChildSwitchOut registers the callback fired when the converter's
// consumer side switches out.
func (c *Converter) OnChildSwitchOut(cb func(*Converter)) { c.onChildSwitchOut = cb }

// OnLoadChanged registers the callback fired when output current differs
// from the previous tick's.
func (c *Converter) OnLoadChanged(cb func(*Converter)) { c.onLoadChanged = cb }
