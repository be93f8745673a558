package grid

import "math"

// Bus aggregates current at a fixed voltage: the one element kind that is
// always Bus-kind on both sides of the Child/Parent pairing rule, and the
// only element whose equivalent resistance, current flow, and throughput
// are derived rather than configured.
type Bus struct {
	locationID  uint32
	voltage     float64
	maxCurrentA float64

	manager Manager

	parents  []Parent
	children []Child

	equivalentResistance float64
	throughcurrentA      float64
	lastThroughcurrentA  float64
	overMax              bool

	onCurrentThroughputChange func(*Bus)
	onMaxCurrentHigh          func(*Bus)
	onMaxCurrentOk            func(*Bus)
}

// NewBus constructs a Bus at a fixed voltage with the given overload
// threshold. manager is notified via MarkDirty whenever this bus's
// bus-to-bus topology changes (see Connect/Disconnect).
func NewBus(voltage, maxCurrentA float64, manager Manager, locationID uint32) *Bus {
	return &Bus{
		locationID:           locationID,
		voltage:              voltage,
		maxCurrentA:          maxCurrentA,
		manager:              manager,
		equivalentResistance: math.Inf(1),
	}
}

// Kind implements both Parent and Child.
func (b *Bus) Kind() Kind { return KindBus }

// LocationID implements both Parent and Child. Ignored for matching since
// Bus is always global.
func (b *Bus) LocationID() uint32 { return b.locationID }

// IsGlobal implements both Parent and Child; a Bus matches any location.
func (b *Bus) IsGlobal() bool { return true }

// VoltageWindow implements both Parent and Child as the degenerate point
// window [voltage, voltage] — a Bus has exactly one voltage, not a band.
func (b *Bus) VoltageWindow() (float64, float64) { return b.voltage, b.voltage }

// Voltage returns the bus's fixed operating voltage.
func (b *Bus) Voltage() float64 { return b.voltage }

// MaxCurrentA returns the overload threshold used by OnMaxCurrentHigh/Ok.
func (b *Bus) MaxCurrentA() float64 { return b.maxCurrentA }

// ParentSwitchedIn implements Parent; a Bus is never switched out.
func (b *Bus) ParentSwitchedIn() bool { return true }

func (b *Bus) setParentSwitchedIn(bool) {}

// ChildSwitchedIn implements Child; a Bus is never switched out.
func (b *Bus) ChildSwitchedIn() bool { return true }

func (b *Bus) setChildSwitchedIn(bool) {}

// Children implements Parent: every element this bus feeds.
func (b *Bus) Children() []Child { return b.children }

func (b *Bus) addChild(c Child) {
	b.children = append(b.children, c)
	if _, ok := c.(*Bus); ok && b.manager != nil {
		b.manager.MarkDirty()
	}
}

func (b *Bus) removeChild(c Child) {
	for i, ch := range b.children {
		if ch == c {
			b.children = append(b.children[:i], b.children[i+1:]...)
			if _, ok := c.(*Bus); ok && b.manager != nil {
				b.manager.MarkDirty()
			}
			return
		}
	}
}

// Parents implements Child: every element this bus draws power from.
func (b *Bus) Parents() []Parent { return b.parents }

func (b *Bus) addParent(p Parent) {
	b.parents = append(b.parents, p)
	if _, ok := p.(*Bus); ok && b.manager != nil {
		b.manager.MarkDirty()
	}
}

func (b *Bus) removeParent(p Parent) {
	for i, pp := range b.parents {
		if pp == p {
			b.parents = append(b.parents[:i], b.parents[i+1:]...)
			if _, ok := p.(*Bus); ok && b.manager != nil {
				b.manager.MarkDirty()
			}
			return
		}
	}
}

// OnChildSwitchIn panics: a Bus can never be switched, so registering this
// event is a programming error.
func (b *Bus) OnChildSwitchIn(func(*Bus)) {
	panic("grid: bus cannot be switched, do not register switch events on it")
}

// OnChildSwitchOut panics, for the same reason as OnChildSwitchIn.
func (b *Bus) OnChildSwitchOut(func(*Bus)) {
	panic("grid: bus cannot be switched, do not register switch events on it")
}

// OnParentSwitchIn panics, for the same reason as OnChildSwitchIn.
func (b *Bus) OnParentSwitchIn(func(*Bus)) {
	panic("grid: bus cannot be switched, do not register switch events on it")
}

// OnParentSwitchOut panics, for the same reason as OnChildSwitchIn.
func (b *Bus) OnParentSwitchOut(func(*Bus)) {
	panic("grid: bus cannot be switched, do not register switch events on it")
}

// OnCurrentThroughputChange registers the callback fired whenever this
// bus's settled throughput current differs from the previous tick's.
func (b *Bus) OnCurrentThroughputChange(cb func(*Bus)) { b.onCurrentThroughputChange = cb }

// OnMaxCurrentHigh registers the callback fired when throughput crosses
// above MaxCurrentA.
func (b *Bus) OnMaxCurrentHigh(cb func(*Bus)) { b.onMaxCurrentHigh = cb }

// OnMaxCurrentOk registers the callback fired when throughput crosses back
// at or below MaxCurrentA.
func (b *Bus) OnMaxCurrentOk(cb func(*Bus)) { b.onMaxCurrentOk = cb }

// GetThroughputCurrent returns the settled total current through this bus
// for the last evaluated tick.
func (b *Bus) GetThroughputCurrent() float64 { return b.throughcurrentA }

// GetEquivalentResistance returns the resistance last computed by
// RefreshResistance.
func (b *Bus) GetEquivalentResistance() float64 { return b.equivalentResistance }

// RawDemandPower returns the power this bus would draw at its own voltage
// given its current equivalent resistance — used by a Converter upstream of
// this bus to size its own demand on its own upstream bus.
func (b *Bus) RawDemandPower() float64 {
	r := b.RefreshResistance()
	if math.IsInf(r, 1) || r <= 0 {
		return 0
	}
	return (b.voltage * b.voltage) / r
}

// RefreshResistance recomputes this bus's equivalent resistance from its
// children's demand at this tick's effective loads (any shedding already
// applied this tick is reflected): every switched-in Consumer,
// charging ChargableSource, Converter, and nested Bus child contributes a
// parallel branch. Returns +Inf when nothing downstream is drawing current.
func (b *Bus) RefreshResistance() float64 {
	var conductance float64

	for _, child := range b.children {
		switch c := child.(type) {
		case *Consumer:
			amps := c.requestedCurrent(b.voltage)
			if amps <= 0 {
				continue
			}
			conductance += amps / b.voltage

		case *ChargableSource:
			amps := c.chargingRequestedCurrent(b.voltage)
			if amps <= 0 {
				continue
			}
			conductance += amps / b.voltage

		case *Converter:
			desired := c.desiredInputPower()
			if desired <= 0 {
				continue
			}
			conductance += desired / (b.voltage * b.voltage)

		case *Bus:
			rd := c.RefreshResistance()
			if rd > 0 && !math.IsInf(rd, 1) {
				conductance += 1 / rd
			}
		}
	}

	if conductance <= 0 {
		b.equivalentResistance = math.Inf(1)
	} else {
		b.equivalentResistance = 1 / conductance
	}
	return b.equivalentResistance
}

// ReduceCurrentFlow sheds load downstream of this bus to recover missingA
// amps. Converter children shed first (recursing into their downstream
// buses), then plain Consumer children in reverse registration order, then
// any remainder is pushed proportionally into nested Bus children. Returns
// the amount still unrecovered (zero if fully satisfied).
func (b *Bus) ReduceCurrentFlow(missingA float64) float64 {
	remaining := missingA
	if remaining <= 0 {
		return 0
	}

	for _, child := range b.children {
		if remaining <= 0 {
			break
		}
		if conv, ok := child.(*Converter); ok {
			db := conv.DownstreamBus()
			if db == nil {
				continue
			}
			if conv.desiredInputPower() <= 0 {
				continue
			}
			downstreamShort := remaining * b.voltage / db.voltage
			recovered := db.ReduceCurrentFlow(downstreamShort)
			recoveredUpstream := (downstreamShort - recovered) * db.voltage / b.voltage
			remaining -= recoveredUpstream
		}
	}

	for i := len(b.children) - 1; i >= 0 && remaining > 0; i-- {
		switch c := b.children[i].(type) {
		case *Consumer:
			remaining -= c.shed(b.voltage, remaining)
		case *ChargableSource:
			remaining -= c.shed(b.voltage, remaining)
		}
	}

	if remaining <= 0 {
		return 0
	}

	var nestedBuses []*Bus
	var nestedDemand float64
	for _, child := range b.children {
		if nb, ok := child.(*Bus); ok {
			d := nb.RawDemandPower()
			if d > 0 {
				nestedBuses = append(nestedBuses, nb)
				nestedDemand += d / nb.voltage
			}
		}
	}
	if nestedDemand <= 0 {
		return remaining
	}
	for _, nb := range nestedBuses {
		share := (nb.RawDemandPower() / nb.voltage) / nestedDemand
		downstreamShort := remaining * share * b.voltage / nb.voltage
		recovered := nb.ReduceCurrentFlow(downstreamShort)
		remaining -= (downstreamShort - recovered) * b.voltage / nb.voltage
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// CalculateTotalCurrentFlow finalizes every switched-in descendant (direct
// consumers, charging batteries, converters, nested buses) for the tick,
// then records this bus's own settled throughput and fires the
// edge-triggered throughput/overload events.
func (b *Bus) CalculateTotalCurrentFlow(deltaMs float64) {
	var total float64

	for _, child := range b.children {
		switch c := child.(type) {
		case *Consumer:
			c.finalize(b.voltage)
			total += c.GetInputCurrent()

		case *ChargableSource:
			c.finalizeCharging(c.chargingRequestedCurrent(b.voltage), b.voltage)
			total += c.GetInputCurrent()

		case *Converter:
			c.finalizeInput(b.voltage)
			total += c.GetInputCurrent()

		case *Bus:
			c.CalculateTotalCurrentFlow(deltaMs)
			total += c.GetThroughputCurrent()
		}
	}

	b.throughcurrentA = total

	if b.throughcurrentA != b.lastThroughcurrentA {
		b.lastThroughcurrentA = b.throughcurrentA
		if b.onCurrentThroughputChange != nil {
			b.onCurrentThroughputChange(b)
		}
	}

	over := b.maxCurrentA > 0 && b.throughcurrentA > b.maxCurrentA
	if over != b.overMax {
		b.overMax = over
		if over {
			if b.onMaxCurrentHigh != nil {
				b.onMaxCurrentHigh(b)
			}
		} else {
			if b.onMaxCurrentOk != nil {
				b.onMaxCurrentOk(b)
			}
		}
	}
}
