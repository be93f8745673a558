package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SwitchEventRegistrationPanics(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 100, mgr, 0)

	assert.Panics(t, func() { bus.OnChildSwitchIn(func(*Bus) {}) })
	assert.Panics(t, func() { bus.OnChildSwitchOut(func(*Bus) {}) })
	assert.Panics(t, func() { bus.OnParentSwitchIn(func(*Bus) {}) })
	assert.Panics(t, func() { bus.OnParentSwitchOut(func(*Bus) {}) })
}

func TestBus_RefreshResistanceWithNoLoadIsInfinite(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 100, mgr, 0)

	r := bus.RefreshResistance()
	assert.True(t, math.IsInf(r, 1))
	assert.Equal(t, 0.0, bus.RawDemandPower())
}

func TestBus_RefreshResistanceAggregatesParallelBranches(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 1e6, mgr, 0)

	c1 := NewConsumer(120, 120, 1200, 0) // 10A at full load
	c1.SetConsumerLoad(1)
	c1.ResetForTick()
	c2 := NewConsumer(120, 120, 600, 1) // 5A at full load
	c2.SetConsumerLoad(1)
	c2.ResetForTick()

	require.NoError(t, Connect(bus, c1))
	require.NoError(t, Connect(bus, c2))

	r := bus.RefreshResistance()
	assert.InDelta(t, 120.0/15.0, r, 1e-9)
	assert.InDelta(t, 1800.0, bus.RawDemandPower(), 1e-6)
}

func TestBus_CalculateTotalCurrentFlowSumsSettledConsumers(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 1e6, mgr, 0)

	c1 := NewConsumer(120, 120, 1200, 0)
	c1.SetConsumerLoad(1)
	c1.ResetForTick()
	c2 := NewConsumer(120, 120, 600, 1)
	c2.SetConsumerLoad(1)
	c2.ResetForTick()

	require.NoError(t, Connect(bus, c1))
	require.NoError(t, Connect(bus, c2))

	bus.CalculateTotalCurrentFlow(1000)
	assert.InDelta(t, 15.0, bus.GetThroughputCurrent(), 1e-9)
}

func TestBus_OverloadEventsFireOnEdgeCrossingOnly(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 10, mgr, 0) // 10A threshold

	c := NewConsumer(120, 120, 1200, 0) // draws 10A at full load
	require.NoError(t, Connect(bus, c))

	var highs, oks int
	bus.OnMaxCurrentHigh(func(*Bus) { highs++ })
	bus.OnMaxCurrentOk(func(*Bus) { oks++ })

	c.SetConsumerLoad(1)
	c.ResetForTick()
	bus.CalculateTotalCurrentFlow(1000) // exactly at threshold, not over
	assert.Equal(t, 0, highs)

	c.SetConsumerLoad(1) // push it over by adding a second consumer
	c2 := NewConsumer(120, 120, 600, 1)
	require.NoError(t, Connect(bus, c2))
	c2.SetConsumerLoad(1)
	c2.ResetForTick()
	c.ResetForTick()
	bus.CalculateTotalCurrentFlow(1000)
	assert.Equal(t, 1, highs)
	assert.Equal(t, 0, oks)

	c2.SetConsumerLoad(0)
	c2.ResetForTick()
	c.ResetForTick()
	bus.CalculateTotalCurrentFlow(1000)
	assert.Equal(t, 1, highs)
	assert.Equal(t, 1, oks)
}

func TestBus_ReduceCurrentFlowShedsConsumersInReverseRegistrationOrder(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 1e6, mgr, 0)

	c1 := NewConsumer(120, 120, 600, 0) // 5A
	c2 := NewConsumer(120, 120, 600, 1) // 5A
	c3 := NewConsumer(120, 120, 600, 2) // 5A
	require.NoError(t, Connect(bus, c1))
	require.NoError(t, Connect(bus, c2))
	require.NoError(t, Connect(bus, c3))

	for _, c := range []*Consumer{c1, c2, c3} {
		c.SetConsumerLoad(1)
		c.ResetForTick()
	}

	left := bus.ReduceCurrentFlow(5)
	assert.Equal(t, 0.0, left)
	assert.Equal(t, 1.0, c1.GetConsumerLoad())
	assert.Equal(t, 1.0, c2.GetConsumerLoad())
	assert.Equal(t, 0.0, c3.GetConsumerLoad()) // registered last, shed first
}

func TestBus_ReduceCurrentFlowSpillsAcrossMultipleConsumers(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 1e6, mgr, 0)

	c1 := NewConsumer(120, 120, 600, 0) // 5A
	c2 := NewConsumer(120, 120, 600, 1) // 5A
	require.NoError(t, Connect(bus, c1))
	require.NoError(t, Connect(bus, c2))

	for _, c := range []*Consumer{c1, c2} {
		c.SetConsumerLoad(1)
		c.ResetForTick()
	}

	left := bus.ReduceCurrentFlow(7) // more than c2 alone can give up
	assert.Equal(t, 0.0, left)
	assert.Equal(t, 0.0, c2.GetConsumerLoad())
	assert.InDelta(t, 0.6, c1.GetConsumerLoad(), 1e-9) // remaining 2A of 5A shed
}

func TestBus_ReduceCurrentFlowReturnsUnmetWhenNothingLeftToShed(t *testing.T) {
	mgr := &nopManager{}
	bus := NewBus(120, 1e6, mgr, 0)

	left := bus.ReduceCurrentFlow(5)
	assert.Equal(t, 5.0, left)
}

func TestBus_ReduceCurrentFlowConvertsThroughConverterVoltageFrame(t *testing.T) {
	mgr := &nopManager{}
	upstream := NewBus(120, 1e6, mgr, 0)
	downstream := NewBus(24, 1e6, mgr, 0)
	conv := NewConverter(24, 120, 1000, 1.0, 0, 0) // efficiency 1 for simple arithmetic

	require.NoError(t, Connect(upstream, conv))
	require.NoError(t, Connect(conv, downstream))

	consumer := NewConsumer(24, 24, 480, 0) // 20A at 24V
	consumer.SetConsumerLoad(1)
	consumer.ResetForTick()
	require.NoError(t, Connect(downstream, consumer))

	// Upstream-frame shortfall of 2A corresponds to 2 * 120 / 24 = 10A
	// downstream, fully recoverable from the one consumer there.
	left := upstream.ReduceCurrentFlow(2)
	assert.Equal(t, 0.0, left)
	assert.InDelta(t, 0.5, consumer.GetConsumerLoad(), 1e-9) // 10 of 20A shed
}
