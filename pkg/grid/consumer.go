package grid

// Consumer is a load-bearing leaf: a current sink with a min/max operating
// voltage and a user-requested utilization.
type Consumer struct {
	locationID uint32
	minV, maxV float64

	nominalPowerW float64
	requestedLoad float64
	effectiveLoad float64

	childSwitchedIn bool
	parent          Parent

	currentPower float64
	inputCurrent float64
	running      bool

	lastRunning       bool
	lastEffectiveLoad float64

	onChildSwitchIn      func(*Consumer)
	onChildSwitchOut     func(*Consumer)
	onRunningChange      func(*Consumer)
	onConsumerLoadChange func(*Consumer)
}

// NewConsumer constructs a Consumer accepting bus voltages in [minV, maxV]
// and rated at nominalPowerW at full load.
func NewConsumer(minV, maxV, nominalPowerW float64, locationID uint32) *Consumer {
	return &Consumer{
		locationID:      locationID,
		minV:            minV,
		maxV:            maxV,
		nominalPowerW:   nominalPowerW,
		requestedLoad:   0,
		effectiveLoad:   0,
		childSwitchedIn: true,
	}
}

// Kind implements Child.
func (c *Consumer) Kind() Kind { return KindConsumer }

// LocationID implements Child.
func (c *Consumer) LocationID() uint32 { return c.locationID }

// IsGlobal implements Child.
func (c *Consumer) IsGlobal() bool { return false }

// VoltageWindow implements Child.
func (c *Consumer) VoltageWindow() (float64, float64) { return c.minV, c.maxV }

// ChildSwitchedIn implements Child.
func (c *Consumer) ChildSwitchedIn() bool { return c.childSwitchedIn }

func (c *Consumer) setChildSwitchedIn(v bool) { c.childSwitchedIn = v }

// Parents implements Child.
func (c *Consumer) Parents() []Parent {
	if c.parent == nil {
		return nil
	}
	return []Parent{c.parent}
}

func (c *Consumer) addParent(p Parent) { c.parent = p }

func (c *Consumer) removeParent(p Parent) {
	if c.parent == p {
		c.parent = nil
	}
}

// SetChildSwitchedIn flips the consumer's participation flag, firing
// OnChildSwitchIn/OnChildSwitchOut synchronously if the value changes.
func (c *Consumer) SetChildSwitchedIn(in bool) {
	if in == c.childSwitchedIn {
		return
	}
	c.childSwitchedIn = in
	if in {
		if c.onChildSwitchIn != nil {
			c.onChildSwitchIn(c)
		}
	} else {
		if c.onChildSwitchOut != nil {
			c.onChildSwitchOut(c)
		}
	}
}

// SetConsumerLoad records the requested utilization for the next tick.
func (c *Consumer) SetConsumerLoad(x float64) {
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	c.requestedLoad = x
}

// GetConsumerLoad returns the effective (possibly shed) load for the last
// evaluated tick.
func (c *Consumer) GetConsumerLoad() float64 { return c.effectiveLoad }

// RequestedLoad returns the last value passed to SetConsumerLoad.
func (c *Consumer) RequestedLoad() float64 { return c.requestedLoad }

// NominalPowerW returns the consumer's rated power at full load.
func (c *Consumer) NominalPowerW() float64 { return c.nominalPowerW }

// GetCurrentPower returns the power drawn during the last evaluated tick.
func (c *Consumer) GetCurrentPower() float64 { return c.currentPower }

// GetInputCurrent returns the current drawn during the last evaluated tick.
func (c *Consumer) GetInputCurrent() float64 { return c.inputCurrent }

// IsRunning reports whether the consumer was switched in and drawing
// current during the last evaluated tick.
func (c *Consumer) IsRunning() bool { return c.running }

// ResetForTick resets the effective load to the requested load, ahead of
// resistance/apportionment computation. Called once per tick.
func (c *Consumer) ResetForTick() {
	c.effectiveLoad = c.requestedLoad
}

// shed reduces the consumer's effective load by ampsToShed (expressed as
// current at the given bus voltage) and returns the current actually shed.
// A consumer scaled to zero load is not separately switched out.
func (c *Consumer) shed(busVoltage, ampsToShed float64) float64 {
	if !c.childSwitchedIn || c.effectiveLoad <= 0 || ampsToShed <= 0 {
		return 0
	}
	ownCurrent := c.nominalPowerW * c.effectiveLoad / busVoltage
	if ampsToShed >= ownCurrent {
		c.effectiveLoad = 0
		return ownCurrent
	}
	fraction := ampsToShed / ownCurrent
	c.effectiveLoad -= c.effectiveLoad * fraction
	return ampsToShed
}

// requestedCurrent returns the current this consumer would draw at
// busVoltage using its effective load for this tick (the requested load,
// less anything already shed) — used for resistance and demand computation.
func (c *Consumer) requestedCurrent(busVoltage float64) float64 {
	if !c.childSwitchedIn || c.effectiveLoad <= 0 {
		return 0
	}
	return c.nominalPowerW * c.effectiveLoad / busVoltage
}

// finalize computes running/input-current/power from the settled effective
// load for this tick and fires the edge-triggered events.
func (c *Consumer) finalize(busVoltage float64) {
	if c.childSwitchedIn && c.effectiveLoad > 0 {
		c.inputCurrent = c.nominalPowerW * c.effectiveLoad / busVoltage
		c.currentPower = c.nominalPowerW * c.effectiveLoad
	} else {
		c.inputCurrent = 0
		c.currentPower = 0
	}
	c.running = c.childSwitchedIn && c.inputCurrent > 0

	if c.running != c.lastRunning {
		c.lastRunning = c.running
		if c.onRunningChange != nil {
			c.onRunningChange(c)
		}
	}
	if c.effectiveLoad != c.lastEffectiveLoad {
		c.lastEffectiveLoad = c.effectiveLoad
		if c.onConsumerLoadChange != nil {
			c.onConsumerLoadChange(c)
		}
	}
}

// OnChildSwitchIn registers (or, passing nil, removes) the callback fired
// when this consumer is switched in.
func (c *Consumer) OnChildSwitchIn(cb func(*Consumer)) { c.onChildSwitchIn = cb }

// OnChildSwitchOut registers the callback fired when this consumer is
// switched out.
func (c *Consumer) OnChildSwitchOut(cb func(*Consumer)) { c.onChildSwitchOut = cb }

// OnRunningChange registers the callback fired when IsRunning() flips.
func (c *Consumer) OnRunningChange(cb func(*Consumer)) { c.onRunningChange = cb }

// OnConsumerLoadChange registers the callback fired when the effective load
// differs from the previous tick's.
func (c *Consumer) OnConsumerLoadChange(cb func(*Consumer)) { c.onConsumerLoadChange = cb }
