package grid

// Source is a current origin: a constant-power device within an operating
// voltage band. Output voltage is dictated by whichever bus it feeds.
type Source struct {
	locationID uint32
	minV, maxV float64

	maxPowerW          float64
	internalResistance float64 // accepted for constructor parity; unused in Ohm arithmetic, see DESIGN.md

	parentSwitchedIn bool
	child            Child

	outputCurrent     float64
	lastOutputCurrent float64

	onParentSwitchIn  func(*Source)
	onParentSwitchOut func(*Source)
	onLoadChanged     func(*Source)
}

// NewSource constructs a Source accepting bus voltages in [minV, maxV],
// rated at maxPowerW, with the given internal resistance (kept for parity
// with the reference constructor signature; see DESIGN.md).
func NewSource(minV, maxV, maxPowerW, internalResistance float64, locationID uint32) *Source {
	return &Source{
		locationID:         locationID,
		minV:               minV,
		maxV:               maxV,
		maxPowerW:          maxPowerW,
		internalResistance: internalResistance,
		parentSwitchedIn:   true,
	}
}

// Kind implements Parent.
func (s *Source) Kind() Kind { return KindSource }

// LocationID implements Parent.
func (s *Source) LocationID() uint32 { return s.locationID }

// IsGlobal implements Parent.
func (s *Source) IsGlobal() bool { return false }

// VoltageWindow implements Parent.
func (s *Source) VoltageWindow() (float64, float64) { return s.minV, s.maxV }

// ParentSwitchedIn implements Parent.
func (s *Source) ParentSwitchedIn() bool { return s.parentSwitchedIn }

func (s *Source) setParentSwitchedIn(v bool) { s.parentSwitchedIn = v }

// Children implements Parent.
func (s *Source) Children() []Child {
	if s.child == nil {
		return nil
	}
	return []Child{s.child}
}

func (s *Source) addChild(c Child) { s.child = c }

func (s *Source) removeChild(c Child) {
	if s.child == c {
		s.child = nil
	}
}

// SetParentSwitchedIn flips the source's participation flag, firing
// OnParentSwitchIn/OnParentSwitchOut synchronously if the value changes.
func (s *Source) SetParentSwitchedIn(in bool) {
	if in == s.parentSwitchedIn {
		return
	}
	s.parentSwitchedIn = in
	if in {
		if s.onParentSwitchIn != nil {
			s.onParentSwitchIn(s)
		}
	} else {
		if s.onParentSwitchOut != nil {
			s.onParentSwitchOut(s)
		}
	}
}

// MaxOutputCurrent returns the most current this source could deliver at
// the given bus voltage, 0 if switched out.
func (s *Source) MaxOutputCurrent(busVoltage float64) float64 {
	if !s.parentSwitchedIn || busVoltage <= 0 {
		return 0
	}
	return s.maxPowerW / busVoltage
}

// MaxPowerW returns the source's rated power.
func (s *Source) MaxPowerW() float64 { return s.maxPowerW }

// GetOutputCurrent returns the apportioned share of circuit current this
// source delivered during the last evaluated tick.
func (s *Source) GetOutputCurrent() float64 { return s.outputCurrent }

// Deliver records this source's apportioned output current for the tick
// and fires OnLoadChanged if it differs from the last tick's value.
func (s *Source) Deliver(amps float64) {
	s.outputCurrent = amps
	if s.outputCurrent != s.lastOutputCurrent {
		s.lastOutputCurrent = s.outputCurrent
		if s.onLoadChanged != nil {
			s.onLoadChanged(s)
		}
	}
}

// GetCurrentPowerOutput returns output current times the given bus voltage.
func (s *Source) GetCurrentPowerOutput(busVoltage float64) float64 {
	return s.outputCurrent * busVoltage
}

// OnParentSwitchIn registers the callback fired when this source is
// switched in.
func (s *Source) OnParentSwitchIn(cb func(*Source)) { s.onParentSwitchIn = cb }

// OnParentSwitchOut registers the callback fired when this source is
// switched out.
func (s *Source) OnParentSwitchOut(cb func(*Source)) { s.onParentSwitchOut = cb }

// OnLoadChanged registers the callback fired when output current differs
// from the previous tick's.
func (s *Source) OnLoadChanged(cb func(*Source)) { s.onLoadChanged = cb }
