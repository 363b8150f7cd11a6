package flight

import (
	"fmt"

	"github.com/banshee-data/swarm.tools/internal/bag"
	"github.com/banshee-data/swarm.tools/internal/monitoring"
	"github.com/banshee-data/swarm.tools/internal/swarm"
	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"github.com/banshee-data/swarm.tools/internal/trajectory"
	"gonum.org/v1/gonum/spatial/r3"
)

// NewSimFleet creates a simulated fleet with one vehicle per id, each
// resting on the ground below the first sample of its trajectory.
func NewSimFleet(clock timeutil.Clock, ids []string, traj []trajectory.Vehicle) *swarm.SimFleet {
	f := swarm.NewSimFleet(clock, ids...)
	for i, id := range ids {
		if i >= len(traj) || traj[i].Samples() == 0 {
			continue
		}
		p, _, _ := traj[i].At(0)
		f.Place(id, r3.Vec{X: p.X, Y: p.Y})
	}
	return f
}

// RecordSim flies traj on a simulated fleet and writes the setpoints and
// resulting poses to a new log at path in format. With a MockClock the
// flight takes no wall time and the log timestamps follow the choreography.
func RecordSim(path string, format bag.Format, clock timeutil.Clock, ids []string, traj []trajectory.Vehicle, p Params) (*swarm.SimFleet, error) {
	fleet := NewSimFleet(clock, ids, traj)
	d, err := NewDriver(fleet, clock, traj, p)
	if err != nil {
		return nil, err
	}

	w, err := bag.CreateLog(path, format)
	if err != nil {
		return nil, err
	}
	fleet.SetRecorder(swarm.NewBagRecorder(w, format.Encoding()))

	runErr := d.Run()
	if err := w.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close bag: %w", err)
	}
	if runErr != nil {
		return fleet, runErr
	}
	monitoring.Logf("recorded %d messages for %d vehicles, %d frames into %s", w.Count(), len(ids), d.Frames(), path)
	return fleet, nil
}
