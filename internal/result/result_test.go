package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
	"github.com/spaghettifunk/vkrunner-go/internal/vkgpu"
)

func TestMergeWorstOf(t *testing.T) {
	cases := []struct {
		a, b, want Verdict
	}{
		{Pass, Pass, Pass},
		{Pass, Skip, Skip},
		{Skip, Fail, Fail},
		{Fail, Crash, Crash},
		{Crash, Pass, Crash},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Merge(c.a, c.b))
		assert.Equal(t, c.want, Merge(c.b, c.a))
	}
}

func TestFromScriptNoCommandsSkip(t *testing.T) {
	scr := &script.Script{}
	assert.Equal(t, Skip, FromScript(scr, nil))
}

func TestFromScriptSuccessPass(t *testing.T) {
	scr := &script.Script{Commands: []script.Command{{LineNum: 1, Op: script.Operation{Kind: script.OpClear}}}}
	assert.Equal(t, Pass, FromScript(scr, nil))
}

func TestFromErrorIncompatibleIsSkip(t *testing.T) {
	err := &vkgpu.Error{Incompatible: true}
	assert.Equal(t, Skip, FromError(err))
}

func TestFromErrorVkErrorNotIncompatibleIsFail(t *testing.T) {
	err := &vkgpu.Error{Incompatible: false}
	assert.Equal(t, Fail, FromError(err))
}

func TestFromErrorPlainErrorIsFail(t *testing.T) {
	assert.Equal(t, Fail, FromError(vkgpu.ErrAllocateDescriptorSetsFailed))
}

func TestFromErrorCommandErrorsEmptyIsPass(t *testing.T) {
	var errs vkgpu.CommandErrors
	assert.Equal(t, Pass, FromError(errs))
}

func TestFromErrorCommandErrorsNonEmptyIsFail(t *testing.T) {
	errs := vkgpu.CommandErrors{{LineNum: 1, Err: errors.New("boom")}}
	assert.Equal(t, Fail, FromError(errs))
}

func TestFromErrorCheckErrorIsSkip(t *testing.T) {
	err := &requirements.CheckError{Detail: "missing extension"}
	assert.Equal(t, Skip, FromError(err))
}

func TestFromErrorNilIsPass(t *testing.T) {
	assert.Equal(t, Pass, FromError(nil))
}

func TestFromRecoverPanicIsCrash(t *testing.T) {
	assert.Equal(t, Crash, FromRecover("oops"))
	assert.Equal(t, Pass, FromRecover(nil))
}

func TestPiglitLine(t *testing.T) {
	assert.Equal(t, `PIGLIT: {"result": "fail"}`, PiglitLine(Fail))
}
