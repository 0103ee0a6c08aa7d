package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timewinder-dev/dreamvm/interp"
	"github.com/timewinder-dev/dreamvm/sched"
	"github.com/timewinder-dev/dreamvm/script"
	"github.com/timewinder-dev/dreamvm/vm"
)

func start(t *testing.T, b *script.Builder) *Bridge {
	p, tr, err := b.Build()
	require.NoError(t, err)
	s := sched.New(interp.NewContext(p, tr))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(ctx, time.Millisecond, 0)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return New(s)
}

func program() *script.Builder {
	b := script.NewBuilder()
	b.Field("/mob", "hp", vm.Number(10))
	b.Field("/mob", "name", vm.Null)
	b.Proc("/mob", "New", script.ProcSpec{Args: []vm.ProcArg{{Name: "hp"}}},
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.Assign, b.SrcField("hp")),
		script.Op(vm.Return),
	)
	b.Proc("/mob", "heal", script.ProcSpec{Args: []vm.ProcArg{{Name: "n"}}},
		script.Op(vm.PushReferenceValue, b.SrcField("hp")),
		script.Op(vm.PushReferenceValue, vm.ArgumentRef(0)),
		script.Op(vm.Add),
		script.Op(vm.Assign, b.SrcField("hp")),
		script.Op(vm.Return),
	)
	b.Proc("", "slow", script.ProcSpec{},
		script.Op(vm.PushFloat, 2),
		script.Op(vm.Sleep),
		script.Op(vm.PushFloat, 11),
		script.Op(vm.Return),
	)
	return b
}

func TestObjectRoundTrip(t *testing.T) {
	br := start(t, program())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mob, err := br.NewObject(ctx, "/mob", interp.Positional(vm.Number(20)))
	require.NoError(t, err)
	require.Equal(t, vm.KindObject, mob.Kind)

	hp, err := br.ReadField(ctx, mob, "hp")
	require.NoError(t, err)
	assert.Equal(t, vm.Number(20), hp)

	v, err := br.CallByName(ctx, mob, "heal", interp.Positional(vm.Number(5)))
	require.NoError(t, err)
	assert.Equal(t, vm.Number(25), v)

	name, err := br.Text(ctx, "orc")
	require.NoError(t, err)
	require.NoError(t, br.WriteField(ctx, mob, "name", name))
	s, err := br.Stringify(ctx, mob)
	require.NoError(t, err)
	assert.Equal(t, "orc", s)

	_, err = br.ReadField(ctx, mob, "mana")
	var le *vm.LookupError
	assert.ErrorAs(t, err, &le)
}

func TestCallWaitsForSleepingProc(t *testing.T) {
	br := start(t, program())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := br.CallByName(ctx, vm.Null, "slow", interp.Args{})
	require.NoError(t, err)
	assert.Equal(t, vm.Number(11), v)
}

func TestUnknownProc(t *testing.T) {
	br := start(t, program())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := br.CallByName(ctx, vm.Null, "missing", interp.Args{})
	var le *vm.LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, vm.NoSuchProc, le.Kind)
}
