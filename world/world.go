// Package world boots a program from a config file and drives its ticks.
package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/rs/zerolog/log"

	"github.com/timewinder-dev/dreamvm/bridge"
	"github.com/timewinder-dev/dreamvm/faultlog"
	"github.com/timewinder-dev/dreamvm/interp"
	"github.com/timewinder-dev/dreamvm/sched"
	"github.com/timewinder-dev/dreamvm/script"
	"github.com/timewinder-dev/dreamvm/tree"
	"github.com/timewinder-dev/dreamvm/vm"
)

type World struct {
	Config   *Config
	Program  *vm.Program
	Context  *interp.Context
	Sched    *sched.Scheduler
	Bridge   *bridge.Bridge
	Reporter Reporter

	journal *faultlog.SQLiteStore
}

// Stats summarises a run.
type Stats struct {
	Ticks   int64
	Resumed int64
	Faults  int64
	Live    int
	Pending int
}

// ImageExt is the file extension of program images.
const ImageExt = ".dvm"

// LoadProgram loads the configured image, or assembles the configured
// script. Procs that failed to assemble or verify are logged and left
// invalid.
func LoadProgram(c *Config) (*vm.Program, *tree.Tree, error) {
	if c.World.Image != "" {
		return loadImage(c.World.Image)
	}
	return loadScript(c.World.Script)
}

// LoadProgramFile loads a program image when path ends in ImageExt and
// assembles it as a script otherwise.
func LoadProgramFile(path string) (*vm.Program, *tree.Tree, error) {
	if strings.HasSuffix(path, ImageExt) {
		return loadImage(path)
	}
	return loadScript(path)
}

func loadImage(path string) (*vm.Program, *tree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	p, err := vm.DecodeImage(f)
	if p == nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if err != nil {
		log.Warn().Err(err).Str("image", path).Msg("some procs failed verification")
	}
	t, err := tree.Build(p)
	if err != nil {
		return nil, nil, err
	}
	return p, t, nil
}

func loadScript(path string) (*vm.Program, *tree.Tree, error) {
	p, t, err := script.LoadFile(path)
	if err != nil && p == nil {
		return nil, nil, err
	}
	if err != nil {
		log.Warn().Err(err).Str("script", path).Msg("some procs failed to assemble")
	}
	return p, t, nil
}

// Boot loads the program and builds the runtime around it. Nothing runs
// until Run.
func Boot(c *Config) (*World, error) {
	p, t, err := LoadProgram(c)
	if err != nil {
		return nil, err
	}
	w := &World{
		Config:   c,
		Program:  p,
		Reporter: &SilentReporter{},
	}
	var store faultlog.Store
	if c.Faults.Journal != "" {
		w.journal, err = faultlog.OpenSQLite(c.Faults.Journal)
		if err != nil {
			return nil, err
		}
		store = w.journal
	}
	ctx := interp.NewContext(p, t)
	ctx.Faults = faultlog.New(c.Faults.Recent, store)
	ctx.TickLag = c.World.TickLag
	ctx.MaxCallDepth = c.World.MaxCallDepth
	w.Context = ctx
	w.Sched = sched.New(ctx)
	w.Bridge = bridge.New(w.Sched)
	log.Info().
		Str("world", c.World.Name).
		Int("types", t.Len()).
		Int("procs", len(p.Procs)).
		Msg("world booted")
	return w, nil
}

// Run spawns the entry proc and ticks until ctx is done, MaxTicks ticks
// have run, or, unless KeepAlive is set, nothing is left to wake.
func (w *World) Run(ctx context.Context) (Stats, error) {
	cfg := w.Config.World
	period, err := w.Config.Period()
	if err != nil {
		return Stats{}, err
	}
	if cfg.Entry != "" {
		id, ok := w.Program.GlobalProc(cfg.Entry)
		if !ok {
			return Stats{}, &vm.LookupError{Kind: vm.NoSuchProc, Name: cfg.Entry}
		}
		if err := w.Sched.Spawn(id, vm.Null, vm.Null, interp.Args{}); err != nil {
			return Stats{}, err
		}
	}
	w.Sched.OnTick = func(now int64) bool {
		if cfg.ReportEvery > 0 && now%cfg.ReportEvery == 0 {
			w.Reporter.Printf("%s tick %d: %d pending, %d faults\n",
				color.Cyan.Sprint(cfg.Name), now, w.Sched.Pending(), w.Context.Faults.Count())
		}
		return cfg.KeepAlive || w.Sched.Pending() > 0
	}
	err = w.Sched.Run(ctx, period, cfg.MaxTicks)
	st := w.Stats()
	log.Info().
		Str("world", cfg.Name).
		Int64("ticks", st.Ticks).
		Int64("faults", st.Faults).
		Msg("world stopped")
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return st, err
}

// Stats reads the counters. Call it from the executor or after Run.
func (w *World) Stats() Stats {
	return Stats{
		Ticks:   w.Sched.Now(),
		Resumed: w.Sched.Resumed(),
		Faults:  w.Context.Faults.Count(),
		Live:    w.Context.Heap.Live(),
		Pending: w.Sched.Pending(),
	}
}

// Global reads a global declared on the root type.
func (w *World) Global(name string) (vm.Value, error) {
	slot, ok := w.Context.Tree.Root.GlobalSlot(name)
	if !ok {
		return vm.Null, &vm.LookupError{Kind: vm.NoSuchField, Name: name, On: "/"}
	}
	return w.Context.Globals[slot], nil
}

func (w *World) Close() error {
	return w.Context.Faults.Close()
}
