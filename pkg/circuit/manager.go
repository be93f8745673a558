package circuit

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/flowmesh/powergrid/pkg/grid"
)

// supply is anything that can feed current into a circuit for a tick: a
// real Source, a SOURCING ChargableSource, or a Converter importing current
// from a different circuit.
type supply interface {
	MaxOutputCurrent(busVoltage float64) float64
}

// CircuitManager owns every registered bus, partitions them into Circuits
// whenever the bus-to-bus topology changes, and evaluates one tick at a
// time across all of them. It implements grid.Manager so buses can report
// topology changes directly.
type CircuitManager struct {
	log *logrus.Logger

	buses    []*grid.Bus
	circuits []*Circuit
	dirty    bool
}

// New constructs an empty CircuitManager. log may be nil, in which case a
// default logrus logger is used.
func New(log *logrus.Logger) *CircuitManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CircuitManager{log: log, dirty: true}
}

// Register adds a bus to the set this manager partitions and evaluates.
// Call it once per bus immediately after construction.
func (m *CircuitManager) Register(bus *grid.Bus) {
	m.buses = append(m.buses, bus)
	m.dirty = true
}

// MarkDirty implements grid.Manager: it is called by a Bus whenever a
// bus-to-bus edge is added or removed, so the next Evaluate repartitions
// before running.
func (m *CircuitManager) MarkDirty() { m.dirty = true }

// GetCircuits returns the circuits as of the last repartition, usable for
// inspection immediately after Evaluate returns.
func (m *CircuitManager) GetCircuits() []*Circuit { return m.circuits }

// Size returns the number of circuits as of the last repartition.
func (m *CircuitManager) Size() int { return len(m.circuits) }

// repartition recomputes connected components of the bus-to-bus graph and
// rebuilds each Circuit's source/battery/incoming-converter lists. Circuits
// without any remaining bus (and circuit identity generally) are not
// preserved across a repartition — only bus membership and the prior tick's
// shortfall survive; the shortfall is carried per bus, and a new circuit
// takes the largest value found among its buses.
func (m *CircuitManager) repartition() {
	prevShortfall := make(map[*grid.Bus]float64, len(m.circuits))
	for _, c := range m.circuits {
		for _, b := range c.buses {
			prevShortfall[b] = c.prevShortfallA
		}
	}

	visited := make(map[*grid.Bus]bool, len(m.buses))
	var circuits []*Circuit
	nextID := 0

	for _, start := range m.buses {
		if visited[start] {
			continue
		}
		comp := busComponent(start, visited)

		c := &Circuit{id: nextID, voltage: comp[0].Voltage(), buses: comp}
		nextID++

		for _, b := range comp {
			if !hasBusParent(b) {
				c.roots = append(c.roots, b)
			}
			for _, p := range b.Parents() {
				switch s := p.(type) {
				case *grid.Source:
					c.sources = append(c.sources, s)
				case *grid.ChargableSource:
					c.chargables = append(c.chargables, s)
				case *grid.Converter:
					c.incoming = append(c.incoming, s)
				}
			}
			if sf, ok := prevShortfall[b]; ok && sf > c.prevShortfallA {
				c.prevShortfallA = sf
			}
		}

		circuits = append(circuits, c)
	}

	m.circuits = circuits
	m.dirty = false
	m.log.WithFields(logrus.Fields{"circuit_count": len(circuits)}).Debug("circuit: repartitioned")
}

func hasBusParent(b *grid.Bus) bool {
	for _, p := range b.Parents() {
		if _, ok := p.(*grid.Bus); ok {
			return true
		}
	}
	return false
}

// busComponent performs a breadth-first search over bus-to-bus edges (both
// directions) starting at start, marking every visited bus in visited and
// returning the full connected component.
func busComponent(start *grid.Bus, visited map[*grid.Bus]bool) []*grid.Bus {
	visited[start] = true
	queue := []*grid.Bus{start}
	var comp []*grid.Bus

	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		comp = append(comp, b)

		for _, child := range b.Children() {
			if nb, ok := child.(*grid.Bus); ok && !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
		for _, parent := range b.Parents() {
			if nb, ok := parent.(*grid.Bus); ok && !visited[nb] {
				visited[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	return comp
}

// Evaluate advances every circuit by one tick of deltaMs milliseconds. It
// runs in three sub-passes across all circuits rather than evaluating one
// circuit fully at a time, so that a Converter bridging two circuits never
// needs its circuits ordered relative to each other: (1) reset every
// consumer's effective load to its requested load, (2) refresh resistance,
// apportion source current, and run overload shedding for every circuit,
// then (3) finalize settled current flow, step battery charge, and emit
// events for every circuit.
func (m *CircuitManager) Evaluate(deltaMs float64) {
	if m.dirty {
		m.repartition()
	}

	for _, c := range m.circuits {
		for _, b := range c.buses {
			for _, child := range b.Children() {
				switch cons := child.(type) {
				case *grid.Consumer:
					cons.ResetForTick()
				case *grid.ChargableSource:
					cons.ResetForTick()
				}
			}
		}
	}

	for _, c := range m.circuits {
		m.apportion(c)
	}

	for _, c := range m.circuits {
		for _, root := range c.roots {
			root.CalculateTotalCurrentFlow(deltaMs)
		}
		for _, b := range c.chargables {
			b.IntegrateCharge(deltaMs)
		}
	}
}

// apportion refreshes a circuit's resistance from every root bus, projects
// this tick's own shortfall to drive battery autoswitch (so a fresh
// shortfall gets a battery rescue in the same tick), computes how much of
// its demand its own supplies can satisfy, apportions current across those
// supplies, sheds any still-unmet demand, and records the settled shortfall
// in prevShortfallA (carried across repartitions; autoswitch does not read
// it).
func (m *CircuitManager) apportion(c *Circuit) {
	var demand float64
	rootDemand := make([]float64, len(c.roots))
	for i, root := range c.roots {
		r := root.RefreshResistance()
		if r > 0 && !math.IsInf(r, 1) {
			rootDemand[i] = c.voltage / r
			demand += rootDemand[i]
		}
	}

	// Project this tick's shortfall before stepping autoswitch, using
	// capacity from every supply except a battery still IDLE (whose
	// autoswitch decision this projection is about to drive), so a battery
	// can rescue its circuit in the same tick demand first exceeds supply
	// instead of one tick later.
	var projectedCapacity float64
	for _, s := range c.sources {
		projectedCapacity += s.MaxOutputCurrent(c.voltage)
	}
	for _, s := range c.incoming {
		projectedCapacity += s.MaxOutputCurrent(c.voltage)
	}
	for _, b := range c.chargables {
		if b.ParentSwitchedIn() {
			projectedCapacity += b.MaxOutputCurrent(c.voltage)
		}
	}
	projectedShortfall := demand - projectedCapacity
	if projectedShortfall < 0 {
		projectedShortfall = 0
	}
	for _, b := range c.chargables {
		b.AutoswitchStep(projectedShortfall)
	}

	// A battery that just entered or left CHARGING changes the resistance
	// its bus reports; re-refresh so that demand reflects this tick's
	// autoswitch decisions rather than last tick's.
	demand = 0
	for i, root := range c.roots {
		r := root.RefreshResistance()
		if r > 0 && !math.IsInf(r, 1) {
			rootDemand[i] = c.voltage / r
			demand += rootDemand[i]
		} else {
			rootDemand[i] = 0
		}
	}

	if demand <= 0 {
		c.equivalentResistance = math.Inf(1)
		c.circuitCurrent = 0
		c.prevShortfallA = 0
		return
	}
	c.equivalentResistance = c.voltage / demand

	type feed struct {
		s   supply
		max float64
	}
	var feeds []feed
	var capacity float64
	for _, s := range c.sources {
		mx := s.MaxOutputCurrent(c.voltage)
		feeds = append(feeds, feed{s, mx})
		capacity += mx
	}
	for _, s := range c.chargables {
		mx := s.MaxOutputCurrent(c.voltage)
		feeds = append(feeds, feed{s, mx})
		capacity += mx
	}
	for _, s := range c.incoming {
		mx := s.MaxOutputCurrent(c.voltage)
		feeds = append(feeds, feed{s, mx})
		capacity += mx
	}

	delivered := demand
	if capacity < demand {
		delivered = capacity
	}

	for _, f := range feeds {
		var share float64
		if capacity > 0 {
			share = f.max / capacity * delivered
		}
		deliverCurrent(f.s, share, c.voltage)
	}

	c.circuitCurrent = delivered
	shortfall := demand - delivered
	if shortfall < 0 {
		shortfall = 0
	}
	c.prevShortfallA = shortfall

	if shortfall <= 0 {
		return
	}
	for i, root := range c.roots {
		if rootDemand[i] <= 0 {
			continue
		}
		rootShort := shortfall * (rootDemand[i] / demand)
		if left := root.ReduceCurrentFlow(rootShort); left > 0 {
			m.log.WithFields(logrus.Fields{
				"circuit_id": c.id, "unmet_amps": left,
			}).Warn("circuit: overload shed could not fully recover shortfall")
		}
	}
}

// deliverCurrent records amps onto whichever supply kind s actually is.
func deliverCurrent(s supply, amps, busVoltage float64) {
	switch v := s.(type) {
	case *grid.Source:
		v.Deliver(amps)
	case *grid.ChargableSource:
		v.Deliver(amps, busVoltage)
	case *grid.Converter:
		v.Deliver(amps, busVoltage)
	}
}
