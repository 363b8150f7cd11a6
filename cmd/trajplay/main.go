// Command trajplay flies a precomputed swarm trajectory: it loads the
// position, velocity and acceleration tables, assigns one block to each
// vehicle and runs the takeoff, approach, playback and landing sequence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/swarm.tools/internal/bag"
	"github.com/banshee-data/swarm.tools/internal/config"
	"github.com/banshee-data/swarm.tools/internal/flight"
	"github.com/banshee-data/swarm.tools/internal/monitoring"
	"github.com/banshee-data/swarm.tools/internal/serialmux"
	"github.com/banshee-data/swarm.tools/internal/swarm"
	"github.com/banshee-data/swarm.tools/internal/timeutil"
	"github.com/banshee-data/swarm.tools/internal/trajectory"
	"github.com/banshee-data/swarm.tools/internal/version"
)

const (
	linkSim    = "sim"
	linkSerial = "serial"
)

var (
	posPath     = flag.String("pos", "", "Position trajectory CSV; the _vel and _acc companions are read from the same directory")
	configPath  = flag.String("config", "", "Playback config JSON (optional)")
	modeFlag    = flag.String("mode", "", "Command mode, cmdPosition or cmdFullState (overrides the config)")
	linkFlag    = flag.String("link", linkSim, "Fleet link: sim or serial")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port of the ground-station bridge (serial link)")
	recordPath  = flag.String("record", "", "Record the flight into this new log (sim link)")
	formatFlag  = flag.String("format", string(bag.FormatROS1), "Format of the -record log: ros1 (.bag file) or rosbag2 (directory)")
	fast        = flag.Bool("fast", false, "Do not wait between phases (sim link)")
	debugListen = flag.String("debug-listen", "", "Serve the link debug routes on this address (serial link)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	posPath     string
	configPath  string
	mode        string
	link        string
	port        string
	recordPath  string
	format      string
	fast        bool
	debugListen string
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("trajplay", version.String())
		return
	}

	opts := options{
		posPath:     *posPath,
		configPath:  *configPath,
		mode:        *modeFlag,
		link:        *linkFlag,
		port:        *port,
		recordPath:  *recordPath,
		format:      *formatFlag,
		fast:        *fast,
		debugListen: *debugListen,
	}
	if err := run(opts); err != nil {
		log.Fatalf("trajplay: %v", err)
	}
}

// loadConfig reads the optional config file and applies the -mode override.
// The mode is resolved here so that a bad mode fails before anything flies.
func loadConfig(path, mode string) (*config.PlaybackConfig, flight.Params, error) {
	cfg := config.EmptyPlaybackConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadPlaybackConfig(path); err != nil {
			return nil, flight.Params{}, err
		}
	}
	if mode != "" {
		cfg.Mode = &mode
	}
	p, err := cfg.Params()
	if err != nil {
		return nil, flight.Params{}, err
	}
	return cfg, p, nil
}

// checkLink rejects flags the selected link would otherwise ignore.
func checkLink(opts options) error {
	switch opts.link {
	case linkSim:
		if opts.debugListen != "" {
			return errors.New("-debug-listen needs the serial link")
		}
		if opts.recordPath != "" {
			if _, err := bag.ParseFormat(opts.format); err != nil {
				return err
			}
		}
	case linkSerial:
		if opts.recordPath != "" {
			return errors.New("-record needs the sim link")
		}
		if opts.fast {
			return errors.New("-fast needs the sim link")
		}
	default:
		return fmt.Errorf("unknown link %q, want %s or %s", opts.link, linkSim, linkSerial)
	}
	return nil
}

func run(opts options) error {
	if opts.posPath == "" {
		return errors.New("-pos is required")
	}
	if err := checkLink(opts); err != nil {
		return err
	}
	cfg, params, err := loadConfig(opts.configPath, opts.mode)
	if err != nil {
		return err
	}
	traj, err := trajectory.Load(opts.posPath)
	if err != nil {
		return err
	}
	ids := cfg.GetVehicles(len(traj))
	log.Printf("loaded %d trajectories of %d samples, flying %d vehicles in %s mode",
		len(traj), samples(traj), len(ids), params.Mode)

	if opts.link == linkSerial {
		return runSerial(opts, cfg, ids, traj, params)
	}
	return runSim(opts, ids, traj, params)
}

func samples(traj []trajectory.Vehicle) int {
	if len(traj) == 0 {
		return 0
	}
	return traj[0].Samples()
}

func runSim(opts options, ids []string, traj []trajectory.Vehicle, params flight.Params) error {
	var clock timeutil.Clock = timeutil.RealClock{}
	if opts.fast {
		clock = timeutil.NewMockClock(time.Now())
	}

	if opts.recordPath != "" {
		format, err := bag.ParseFormat(opts.format)
		if err != nil {
			return err
		}
		if _, err := flight.RecordSim(opts.recordPath, format, clock, ids, traj, params); err != nil {
			return err
		}
		log.Printf("flight recorded to %s", opts.recordPath)
		return nil
	}

	fleet := flight.NewSimFleet(clock, ids, traj)
	d, err := flight.NewDriver(fleet, clock, traj, params)
	if err != nil {
		return err
	}
	if err := d.Run(); err != nil {
		return err
	}
	log.Printf("simulated flight complete: %d commands", len(fleet.Commands()))
	return nil
}

func runSerial(opts options, cfg *config.PlaybackConfig, ids []string, traj []trajectory.Vehicle, params flight.Params) error {
	link, err := serialmux.NewRealSerialMux(opts.port, cfg.GetSerialBaudRate())
	if err != nil {
		return err
	}
	log.Printf("opened ground-station link on %s", opts.port)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := link.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("link monitor stopped: %v", err)
		}
	}()

	// bridge replies and telemetry are only logged
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := link.Subscribe()
		defer link.Unsubscribe(id)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				monitoring.Logf("link: %s", line)
			case <-ctx.Done():
				return
			}
		}
	}()

	if opts.debugListen != "" {
		mux := http.NewServeMux()
		link.AttachAdminRoutes(mux)
		server := &http.Server{Addr: opts.debugListen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("debug server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				server.Close()
			}
		}()
		log.Printf("debug routes on http://%s/debug/", opts.debugListen)
	}

	fleet := swarm.NewLinkFleet(link, ids)
	d, err := flight.NewDriver(fleet, timeutil.RealClock{}, traj, params)
	if err == nil {
		err = d.Run()
	}

	// closing the port unblocks the monitor's pending read
	cancel()
	if cerr := link.Close(); cerr != nil {
		log.Printf("failed to close link: %v", cerr)
	}
	wg.Wait()
	return err
}
