package world

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/faultlog"
	"github.com/timewinder-dev/dreamvm/vm"
)

func runWorld(t *testing.T, c *Config) (*World, Stats) {
	w, err := Boot(c)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := w.Run(ctx)
	require.NoError(t, err)
	return w, st
}

func TestParseConfigDefaults(t *testing.T) {
	c, err := parseConfig(strings.NewReader("[world]\nscript = \"x.star\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "main", c.World.Entry)
	assert.Equal(t, float32(1), c.World.TickLag)
	assert.Equal(t, 400, c.World.MaxCallDepth)
	d, err := c.Period()
	require.NoError(t, err)
	assert.Equal(t, DefaultTickPeriod, d)

	_, err = parseConfig(strings.NewReader("[world]\ntick_period = \"soon\"\n"))
	assert.Error(t, err)
}

func TestLoadConfigResolvesPaths(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "demo.star"), c.World.Script)
	assert.Equal(t, "demo", c.World.Name)
	d, err := c.Period()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, d)
}

func TestLoadConfigDefaultsScriptName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena.toml")
	require.NoError(t, os.WriteFile(path, []byte("[faults]\njournal = \"faults.db\"\n"), 0o644))

	c, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "arena.star"), c.World.Script)
	assert.Equal(t, filepath.Join(dir, "faults.db"), c.Faults.Journal)
	assert.Equal(t, "arena", c.World.Name)
}

func TestRunTicksUntilIdle(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	w, st := runWorld(t, c)

	count, err := w.Global("count")
	require.NoError(t, err)
	assert.Equal(t, vm.Number(3), count)
	assert.GreaterOrEqual(t, st.Ticks, int64(3))
	assert.Equal(t, int64(0), st.Faults)
	assert.Equal(t, 0, st.Pending)
	assert.Contains(t, FormatStats(st), "Ticks run")
}

func TestMaxTicksStopsRun(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	c.World.MaxTicks = 1
	_, st := runWorld(t, c)
	assert.Equal(t, int64(1), st.Ticks)
	assert.Equal(t, 1, st.Pending)
}

func TestCrashGoesToJournal(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	c.World.Entry = "crash"
	c.Faults.Journal = filepath.Join(t.TempDir(), "faults.db")
	w, st := runWorld(t, c)
	assert.Equal(t, int64(1), st.Faults)

	recent := w.Context.Faults.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, vm.DivideByZero.String(), recent[0].Kind)
	assert.Contains(t, FormatFaults(recent), "demo.dm:5")
	require.NoError(t, w.Close())

	j, err := faultlog.OpenSQLite(c.Faults.Journal)
	require.NoError(t, err)
	defer j.Close()
	n, err := j.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBootFromImage(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	p, _, err := LoadProgram(c)
	require.NoError(t, err)

	image := filepath.Join(t.TempDir(), "demo.dvm")
	f, err := os.Create(image)
	require.NoError(t, err)
	require.NoError(t, vm.EncodeImage(f, p))
	require.NoError(t, f.Close())

	c.World.Image = image
	c.World.Script = ""
	w, _ := runWorld(t, c)
	count, err := w.Global("count")
	require.NoError(t, err)
	assert.Equal(t, vm.Number(3), count)
}

func TestUnknownEntry(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	c.World.Entry = "nope"
	w, err := Boot(c)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Run(context.Background())
	var le *vm.LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, vm.NoSuchProc, le.Kind)
}

func TestLoadProgramFile(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	p, _, err := LoadProgramFile(c.World.Script)
	require.NoError(t, err)

	image := filepath.Join(t.TempDir(), "demo"+ImageExt)
	f, err := os.Create(image)
	require.NoError(t, err)
	require.NoError(t, vm.EncodeImage(f, p))
	require.NoError(t, f.Close())

	got, tr, err := LoadProgramFile(image)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, len(p.Procs), len(got.Procs))
	for _, proc := range got.Procs {
		assert.Empty(t, proc.Invalid, proc.Name)
	}

	_, _, err = LoadProgramFile(filepath.Join(t.TempDir(), "missing"+ImageExt))
	assert.Error(t, err)
}

func TestLoadImageKeepsVerifiedProcs(t *testing.T) {
	c, err := LoadConfigFromFile("testdata/demo.toml")
	require.NoError(t, err)
	p, _, err := LoadProgram(c)
	require.NoError(t, err)
	var broken *vm.Proc
	for _, proc := range p.Procs {
		if !proc.Native() && len(proc.Bytecode) > 0 {
			broken = proc
			break
		}
	}
	require.NotNil(t, broken)
	broken.Bytecode = []byte{byte(vm.Pop)}

	image := filepath.Join(t.TempDir(), "broken"+ImageExt)
	f, err := os.Create(image)
	require.NoError(t, err)
	require.NoError(t, vm.EncodeImage(f, p))
	require.NoError(t, f.Close())

	got, _, err := LoadProgramFile(image)
	require.NoError(t, err)
	assert.NotEmpty(t, got.Procs[broken.ID].Invalid)
}
