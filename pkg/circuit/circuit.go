// Package circuit evaluates the typed element graph built with pkg/grid:
// it partitions buses into connected circuits, apportions source current,
// sheds overloaded load, steps battery charge, and emits the settled
// per-tick events. pkg/grid knows how elements may connect; this package
// knows how a tick actually settles.
package circuit

import (
	"github.com/flowmesh/powergrid/pkg/grid"
)

// Circuit is a connected component of the bus-to-bus graph: every bus in it
// shares one voltage (Connect enforces equal voltage on bus-to-bus edges),
// so "circuit voltage" is well defined.
type Circuit struct {
	id      int
	voltage float64

	buses []*grid.Bus // every bus in this component
	roots []*grid.Bus // buses with no bus-parent; recursion entry points

	sources    []*grid.Source
	chargables []*grid.ChargableSource
	incoming   []*grid.Converter // converters feeding this circuit from outside

	equivalentResistance float64
	circuitCurrent       float64
	prevShortfallA       float64 // last tick's settled unmet demand; carried across repartitions, not itself used to gate same-tick autoswitch
}

// ID returns the circuit's identifier, stable only until the next
// repartition.
func (c *Circuit) ID() int { return c.id }

// Voltage returns the shared voltage of every bus in this circuit.
func (c *Circuit) Voltage() float64 { return c.voltage }

// Buses returns every bus belonging to this circuit.
func (c *Circuit) Buses() []*grid.Bus { return c.buses }

// Sources returns the real Source elements feeding this circuit directly.
func (c *Circuit) Sources() []*grid.Source { return c.sources }

// ChargableSources returns the batteries attached to this circuit.
func (c *Circuit) ChargableSources() []*grid.ChargableSource { return c.chargables }

// EquivalentResistance returns the circuit's combined resistance as of the
// last evaluated tick.
func (c *Circuit) EquivalentResistance() float64 { return c.equivalentResistance }

// CircuitCurrent returns the total current actually delivered across the
// circuit's sources during the last evaluated tick.
func (c *Circuit) CircuitCurrent() float64 { return c.circuitCurrent }

// SubCircuit is the tree of demand fed by a single supply element within a
// Circuit — a diagnostic view, not an evaluation unit: evaluation always
// runs at the Circuit level, never per-source.
type SubCircuit struct {
	Root   *grid.Bus
	Supply interface{} // *grid.Source, *grid.ChargableSource, or *grid.Converter
}

// Consumers walks the subcircuit's bus tree and returns every Consumer
// reachable from Root, including through nested buses.
func (s *SubCircuit) Consumers() []*grid.Consumer {
	var out []*grid.Consumer
	var walk func(b *grid.Bus)
	walk = func(b *grid.Bus) {
		for _, child := range b.Children() {
			switch ch := child.(type) {
			case *grid.Consumer:
				out = append(out, ch)
			case *grid.Bus:
				walk(ch)
			}
		}
	}
	if s.Root != nil {
		walk(s.Root)
	}
	return out
}

// SubCircuits partitions this circuit's demand tree into one SubCircuit per
// directly-attached supply element, for inspection.
func (c *Circuit) SubCircuits() []SubCircuit {
	var out []SubCircuit
	for _, b := range c.buses {
		for _, p := range b.Parents() {
			switch s := p.(type) {
			case *grid.Source:
				out = append(out, SubCircuit{Root: b, Supply: s})
			case *grid.ChargableSource:
				out = append(out, SubCircuit{Root: b, Supply: s})
			case *grid.Converter:
				out = append(out, SubCircuit{Root: b, Supply: s})
			}
		}
	}
	return out
}
