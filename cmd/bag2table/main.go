// Command bag2table converts a recorded flight log into per-vehicle N×4
// tables (t, x, y, z): measured positions and the position, velocity and
// acceleration references that were commanded.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/swarm.tools/internal/bag"
	"github.com/banshee-data/swarm.tools/internal/reflog"
	"github.com/banshee-data/swarm.tools/internal/tablefile"
	"github.com/banshee-data/swarm.tools/internal/trackplot"
	"github.com/banshee-data/swarm.tools/internal/version"
)

var (
	strict        = flag.Bool("strict", false, "Fail on command topics with no reference series instead of skipping them")
	output        = flag.String("o", "", "Output table file (default: the bag path with a .sqlite extension)")
	plotsDir      = flag.String("plots", "", "Write a tracking PNG per vehicle into this directory")
	reportPath    = flag.String("report", "", "Write an HTML tracking report to this file")
	serve         = flag.String("serve", "", "After converting, serve the tailsql debug UI on this address until interrupted")
	poseTopic     = flag.String("pose-topic", "/tf", "Topic carrying measured poses")
	vehiclePrefix = flag.String("vehicle-prefix", "cf", "Only topics of vehicles whose id starts with this prefix are converted")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	bagPath       string
	output        string
	policy        reflog.Policy
	poseTopic     string
	vehiclePrefix string
	plotsDir      string
	reportPath    string
}

// partialSuffix marks a table file that is still being written.
const partialSuffix = ".partial"

// Attribute keys stored in every table file.
const (
	attrSource      = "source"
	attrConvertedAt = "converted_at"
	attrRunID       = "run_id"
	attrPolicy      = "policy"
	attrToolVersion = "tool_version"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <bag>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("bag2table", version.String())
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	opts := options{
		bagPath:       flag.Arg(0),
		output:        *output,
		poseTopic:     *poseTopic,
		vehiclePrefix: *vehiclePrefix,
		plotsDir:      *plotsDir,
		reportPath:    *reportPath,
	}
	if *strict {
		opts.policy = reflog.Strict
	}

	f, paths, err := run(context.Background(), opts)
	if err != nil {
		log.Fatalf("bag2table: %v", err)
	}
	defer f.Close()
	for _, p := range paths {
		fmt.Println(p)
	}

	if *serve != "" {
		if err := serveDebug(f, *serve); err != nil {
			log.Fatalf("bag2table: %v", err)
		}
	}
}

// defaultOutput replaces the extension of a bag file, or appends one to a
// bag directory.
func defaultOutput(bagPath string) string {
	p := filepath.Clean(bagPath)
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return p + tablefile.Extension
	}
	return strings.TrimSuffix(p, filepath.Ext(p)) + tablefile.Extension
}

// run converts the bag and writes the optional plots and report. The table
// file is built next to its final path and renamed into place only once
// everything succeeded, so a failed run leaves no partial output. It is
// returned open.
func run(ctx context.Context, opts options) (*tablefile.File, []string, error) {
	r, err := bag.Open(opts.bagPath)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	acc := reflog.NewAccumulator(reflog.Options{
		Policy: opts.policy,
		Classifier: reflog.Classifier{
			PoseTopic:     opts.poseTopic,
			VehiclePrefix: opts.vehiclePrefix,
		},
	})
	if err := reflog.Convert(ctx, r, acc); err != nil {
		return nil, nil, err
	}

	out := opts.output
	if out == "" {
		out = defaultOutput(opts.bagPath)
	}
	tmp := out + partialSuffix
	f, err := tablefile.Create(tmp)
	if err != nil {
		return nil, nil, err
	}

	paths, err := writeAll(f, acc, opts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, out)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, nil, err
	}

	f, err = tablefile.Open(out)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("converted %d records from %s into %d tables in %s", acc.Records(), opts.bagPath, len(paths), out)
	return f, paths, nil
}

func writeAll(f *tablefile.File, acc *reflog.Accumulator, opts options) ([]string, error) {
	src, err := filepath.Abs(opts.bagPath)
	if err != nil {
		src = opts.bagPath
	}
	attrs := [][2]string{
		{attrSource, src},
		{attrConvertedAt, time.Now().UTC().Format(time.RFC3339)},
		{attrRunID, uuid.NewString()},
		{attrPolicy, opts.policy.String()},
		{attrToolVersion, version.String()},
	}
	for _, a := range attrs {
		if err := f.SetAttr(a[0], a[1]); err != nil {
			return nil, err
		}
	}

	paths, err := reflog.WriteTables(f, acc.Bucket())
	if err != nil {
		return nil, err
	}

	if opts.plotsDir == "" && opts.reportPath == "" {
		return paths, nil
	}
	var tracks []trackplot.Track
	for _, id := range acc.Bucket().VehicleIDs() {
		t, err := trackplot.LoadTrack(f, id)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
		s := t.Summary()
		log.Printf("%s: %d poses, %d references, rms tracking error %.3fm", id, s.PoseSamples, s.RefSamples, s.RMSError)
	}

	if opts.plotsDir != "" {
		for _, t := range tracks {
			file, err := trackplot.SavePNG(opts.plotsDir, t)
			if err != nil {
				log.Printf("skipping plot: %v", err)
				continue
			}
			log.Printf("wrote %s", file)
		}
	}
	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, tracks); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

func writeReport(path string, tracks []trackplot.Track) error {
	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := trackplot.WriteHTML(w, tracks); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func serveDebug(f *tablefile.File, addr string) error {
	mux := http.NewServeMux()
	if err := f.AttachAdminRoutes(mux); err != nil {
		return err
	}
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()
	log.Printf("serving %s at http://%s/debug/tailsql/", f.Path(), addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
