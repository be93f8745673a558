// Command powersim builds a small demonstration grid, ticks it a number of
// times, and logs the settled bus state after each tick (and, at debug log
// level, the settled state of each consumer).
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/flowmesh/powergrid/pkg/circuit"
	"github.com/flowmesh/powergrid/pkg/grid"
	"github.com/flowmesh/powergrid/pkg/util"
)

func main() {
	var (
		ticks        = flag.Int("ticks", 10, "number of ticks to evaluate")
		deltaMs      = flag.Float64("delta-ms", 1000, "tick duration in milliseconds")
		busVoltage   = flag.Float64("voltage", 120, "bus voltage")
		sourcePowerW = flag.Float64("source-power", 1000, "source rated power, in watts")
		consumers    = flag.Int("consumers", 3, "number of demo consumers to attach")
		consumerLoad = flag.Float64("load", 0.8, "requested load fraction [0,1] for every consumer")
		logLevel     = flag.String("log-level", "info", "logrus level")
	)
	flag.Parse()

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	}

	mgr := circuit.New(log)

	bus := grid.NewBus(*busVoltage, 1e9, mgr, 0)
	mgr.Register(bus)

	source := grid.NewSource(*busVoltage, *busVoltage, *sourcePowerW, 0, 0)
	if err := grid.Connect(source, bus); err != nil {
		log.WithError(err).Fatal("powersim: connecting source")
	}

	consumerList := make([]*grid.Consumer, 0, *consumers)
	for i := 0; i < *consumers; i++ {
		c := grid.NewConsumer(*busVoltage, *busVoltage, *sourcePowerW/float64(*consumers), uint32(i))
		if err := grid.Connect(bus, c); err != nil {
			log.WithError(err).Fatal("powersim: connecting consumer")
		}
		c.SetConsumerLoad(*consumerLoad)
		consumerList = append(consumerList, c)
	}

	bus.OnMaxCurrentHigh(func(b *grid.Bus) {
		log.WithField("bus_amps", b.GetThroughputCurrent()).Warn("powersim: bus overloaded")
	})

	for tick := 0; tick < *ticks; tick++ {
		mgr.Evaluate(*deltaMs)

		fields := logrus.Fields{
			"tick":      tick,
			"bus_amps":  util.FormatCurrent(bus.GetThroughputCurrent()),
			"circuits":  mgr.Size(),
		}
		log.WithFields(fields).Info("powersim: tick settled")

		for i, c := range consumerList {
			log.WithFields(logrus.Fields{
				"tick":     tick,
				"consumer": i,
				"load":     c.GetConsumerLoad(),
				"power":    util.FormatPower(c.GetCurrentPower()),
				"running":  c.IsRunning(),
			}).Debug("powersim: consumer settled")
		}
	}

	os.Exit(0)
}
