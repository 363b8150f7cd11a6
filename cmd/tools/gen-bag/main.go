// Command gen-bag generates sample flight logs for testing the converter. It
// flies a trajectory on the simulated fleet with a mock clock, so the log is
// written instantly with the timestamps a real flight would have.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/banshee-data/swarm.tools/internal/bag"
	"github.com/banshee-data/swarm.tools/internal/config"
	"github.com/banshee-data/swarm.tools/internal/flight"
	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"github.com/banshee-data/swarm.tools/internal/trajectory"
)

func main() {
	pos := flag.String("pos", "", "position trajectory CSV")
	output := flag.String("o", "sample.bag", "output log path")
	format := flag.String("format", string(bag.FormatROS1), "log format: ros1 (.bag file) or rosbag2 (directory)")
	mode := flag.String("mode", "cmdPosition", "command mode")
	margin := flag.Int("margin", 20, "frames left unplayed at the end")
	flag.Parse()

	if *pos == "" {
		log.Fatal("-pos is required")
	}
	f, err := bag.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}
	traj, err := trajectory.Load(*pos)
	if err != nil {
		log.Fatalf("failed to load trajectory: %v", err)
	}

	cfg := config.EmptyPlaybackConfig()
	cfg.Mode = mode
	cfg.EndMarginFrames = margin
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid options: %v", err)
	}
	p, err := cfg.Params()
	if err != nil {
		log.Fatal(err)
	}

	clock := timeutil.NewMockClock(time.Now().Truncate(time.Second))
	if _, err := flight.RecordSim(*output, f, clock, cfg.GetVehicles(len(traj)), traj, p); err != nil {
		log.Fatalf("failed to record: %v", err)
	}
	log.Printf("✓ Created: %s (%s of flight)", *output, clock.Slept())
}
