package reconcile

import (
	"testing"

	autogen "github.com/goliatone/go-autogen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerSettings struct {
	Queue    string `yaml:"queue" reconcile:"safe"`
	Walltime string `yaml:"walltime" reconcile:"safe"`
	NP       int    `yaml:"np" reconcile:"safe"`
	QueueID  string `yaml:"queueid" reconcile:"skip"`
	Command  string `yaml:"command"`
}

type scfSettings struct {
	Basis    string         `yaml:"basis"`
	MaxCycle int            `yaml:"max_cycle" reconcile:"safe"`
	Spin     int            `yaml:"spin"`
	Options  map[string]any `yaml:"options"`
	ChkFile  string         `yaml:"chkfile" reconcile:"skip"`
}

type embeddedSettings struct {
	runnerSettings `yaml:",inline"`
	Extra          []string `yaml:"extra"`
}

func TestCompareReflexive(t *testing.T) {
	a := scfSettings{Basis: "vdz", MaxCycle: 50, Options: map[string]any{"level": 3}}

	same, d, err := Compare(a, a)
	require.NoError(t, err)
	assert.True(t, same)
	assert.True(t, d.Same())
	assert.Empty(t, d.OnlyOld)
	assert.Empty(t, d.OnlyNew)
	assert.Empty(t, d.Changed)
}

func TestCompareReportsChangedKeysSorted(t *testing.T) {
	a := scfSettings{Basis: "vdz", MaxCycle: 50, Spin: 0}
	b := scfSettings{Basis: "vtz", MaxCycle: 80, Spin: 0}

	same, d, err := Compare(a, &b)
	require.NoError(t, err)
	assert.False(t, same)
	assert.Equal(t, []string{"basis", "max_cycle"}, d.Changed)
}

func TestCompareIgnoresSkippedKeys(t *testing.T) {
	a := runnerSettings{Queue: "batch", QueueID: "111"}
	b := runnerSettings{Queue: "batch", QueueID: "222"}

	same, _, err := Compare(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	a.Command = "x"
	same, d, err := Compare(a, b, WithSkipKeys("command"))
	require.NoError(t, err)
	assert.True(t, same, d.String())
}

func TestCompareMapsKeySets(t *testing.T) {
	old := map[string]any{"basis": "vdz", "kmesh": []int{2, 2, 2}, "queueid": 7}
	new := map[string]any{"basis": "vdz", "kmesh": []int{4, 4, 4}, "grid": "LGRID", "queueid": 8}

	same, d, err := Compare(old, new, WithSkipKeys("queueid"))
	require.NoError(t, err)
	assert.False(t, same)
	assert.Equal(t, Diff{OnlyNew: []string{"grid"}, Changed: []string{"kmesh"}}, d)

	delete(new, "grid")
	new["kmesh"] = []int{2, 2, 2}
	delete(old, "queueid")
	same, d, err = Compare(old, new, WithSkipKeys("queueid"))
	require.NoError(t, err)
	assert.True(t, same, d.String())
}

func TestCompareRejectsMismatchedTypes(t *testing.T) {
	_, _, err := Compare(runnerSettings{}, scfSettings{})
	require.Error(t, err)
	assert.Equal(t, autogen.ErrCodeInvalidConfig, autogen.ErrorCode(err))

	_, _, err = Compare(3, 4)
	require.Error(t, err)
}

func TestMergeWithoutSafeKeysNeverModifiesOld(t *testing.T) {
	old := map[string]any{"queue": "batch", "np": 4}
	new := map[string]any{"queue": "debug", "np": 4}

	changed, err := Merge(old, new)
	require.Error(t, err)
	assert.False(t, changed)
	assert.True(t, autogen.IsConfigInconsistent(err))
	assert.Equal(t, "batch", old["queue"])
}

func TestMergeCopiesOnlySafeDifferingKeys(t *testing.T) {
	old := runnerSettings{Queue: "batch", Walltime: "1:00:00", NP: 4, QueueID: "123", Command: "qwalk"}
	new := runnerSettings{Queue: "debug", Walltime: "1:00:00", NP: 8, QueueID: "", Command: "qwalk"}

	changed, err := MergeInto(&old, new)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "debug", old.Queue)
	assert.Equal(t, 8, old.NP)
	assert.Equal(t, "1:00:00", old.Walltime)
	assert.Equal(t, "123", old.QueueID, "skipped keys are never copied")
	assert.Equal(t, "qwalk", old.Command)
}

func TestMergeFailsAtomicallyOnUnsafeKey(t *testing.T) {
	old := scfSettings{Basis: "vdz", MaxCycle: 50}
	new := scfSettings{Basis: "vtz", MaxCycle: 100}

	changed, err := MergeInto(&old, new)
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, 50, old.MaxCycle, "safe keys must not be applied when an unsafe key differs")
	assert.Equal(t, "vdz", old.Basis)
}

func TestMergeUnchangedReturnsFalse(t *testing.T) {
	old := scfSettings{Basis: "vdz", ChkFile: "a.chk"}
	new := scfSettings{Basis: "vdz", ChkFile: "b.chk"}

	changed, err := MergeInto(&old, new)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "a.chk", old.ChkFile)
}

func TestMergeMapSafeKeysAddAndRemove(t *testing.T) {
	old := map[string]any{"queue": "batch", "jobname": "si"}
	new := map[string]any{"queue": "debug", "walltime": "2:00:00"}

	changed, err := Merge(old, new, WithSafeKeys("queue", "jobname", "walltime"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, map[string]any{"queue": "debug", "walltime": "2:00:00"}, old)
}

func TestMergeMapOnlyOldUnsafeKeyFails(t *testing.T) {
	old := map[string]any{"basis": "vdz"}
	new := map[string]any{}

	_, err := Merge(old, new)
	require.Error(t, err)
	assert.Contains(t, old, "basis")
}

func TestMergeEmbeddedStruct(t *testing.T) {
	old := embeddedSettings{runnerSettings: runnerSettings{Queue: "batch"}, Extra: []string{"a"}}
	new := embeddedSettings{runnerSettings: runnerSettings{Queue: "gpu"}, Extra: []string{"a"}}

	changed, err := MergeInto(&old, new)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "gpu", old.Queue)

	new.Extra = []string{"b"}
	_, err = MergeInto(&old, new)
	require.Error(t, err)
}

func TestMergeRequiresPointerTarget(t *testing.T) {
	_, err := Merge(runnerSettings{Queue: "a"}, runnerSettings{Queue: "b"})
	require.Error(t, err)
	assert.Equal(t, autogen.ErrCodeInvalidConfig, autogen.ErrorCode(err))
}

func TestKeyClasses(t *testing.T) {
	classes, err := KeyClasses(&runnerSettings{})
	require.NoError(t, err)
	assert.Equal(t, map[string]Class{
		"queue":    ClassSafe,
		"walltime": ClassSafe,
		"np":       ClassSafe,
		"queueid":  ClassSkip,
		"command":  ClassUnsafe,
	}, classes)
}

func TestChangesTyped(t *testing.T) {
	d, err := Changes(scfSettings{Spin: 1}, scfSettings{Spin: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"spin"}, d.Changed)
	assert.Equal(t, "changed: spin", d.String())
}

type writerSettings struct {
	Template  string      `yaml:"template"`
	SCF       scfSettings `yaml:"scf" reconcile:"nested"`
	Completed bool        `yaml:"completed" reconcile:"skip"`
}

func TestMergeNestedSafeKey(t *testing.T) {
	old := writerSettings{Template: "a", SCF: scfSettings{Basis: "vdz", MaxCycle: 50}, Completed: true}
	new := writerSettings{Template: "a", SCF: scfSettings{Basis: "vdz", MaxCycle: 200}}

	changed, err := MergeInto(&old, new)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 200, old.SCF.MaxCycle)
	assert.True(t, old.Completed)

	new.SCF.Basis = "vtz"
	_, err = MergeInto(&old, new)
	require.Error(t, err)

	classes, err := KeyClasses(writerSettings{})
	require.NoError(t, err)
	assert.Equal(t, ClassSafe, classes["scf.max_cycle"])
	assert.Equal(t, ClassSkip, classes["scf.chkfile"])
	assert.Equal(t, ClassUnsafe, classes["scf.basis"])
}

func TestCheckLeavesBothValuesUntouched(t *testing.T) {
	old := &runnerSettings{Queue: "batch", Command: "pyscf"}
	newer := &runnerSettings{Queue: "debug", Command: "pyscf"}

	d, err := Check(old, newer)
	require.NoError(t, err)
	assert.Equal(t, []string{"queue"}, d.Changed)
	assert.Equal(t, "batch", old.Queue)

	newer.Command = "qwalk"
	d, err = Check(old, newer)
	require.Error(t, err)
	assert.True(t, autogen.IsConfigInconsistent(err))
	assert.Equal(t, []string{"command", "queue"}, d.Changed)
	assert.Equal(t, "pyscf", old.Command)
}
