// Package result holds the overall pass/skip/fail/crash verdict a
// script run produces, and the worst-of merge rule used to fold
// several verdicts (one per device, one per probe) into one.
package result

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vkrunner-go/internal/requirements"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
	"github.com/spaghettifunk/vkrunner-go/internal/vkgpu"
)

// Verdict is one of pass/skip/fail/crash, ordered worst-last so Merge
// can just take the max.
type Verdict int

const (
	Pass Verdict = iota
	Skip
	Fail
	Crash
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Skip:
		return "skip"
	case Fail:
		return "fail"
	case Crash:
		return "crash"
	default:
		return "unknown"
	}
}

// Merge returns the worse of a and b in pass < skip < fail < crash
// order.
func Merge(a, b Verdict) Verdict {
	if b > a {
		return b
	}
	return a
}

// FromScript derives the verdict of running scr, where runErr is
// whatever NewTester/Run (or an earlier context/requirements step)
// returned for it, nil on success. A script with no [test] commands
// yields Skip even on a nil error, since nothing was actually
// exercised.
func FromScript(scr *script.Script, runErr error) Verdict {
	if runErr == nil {
		if scr == nil || len(scr.Commands) == 0 {
			return Skip
		}
		return Pass
	}
	return FromError(runErr)
}

// FromError classifies a single error into a verdict: a context or
// window Error marked Incompatible (unsupported driver/extension/
// feature) and an unmet Requirements check are Skip; a non-empty
// CommandErrors aggregate, or anything else, is Fail.
func FromError(err error) Verdict {
	if err == nil {
		return Pass
	}

	var vkErr *vkgpu.Error
	if errors.As(err, &vkErr) {
		if vkErr.Incompatible {
			return Skip
		}
		return Fail
	}

	var checkErr *requirements.CheckError
	if errors.As(err, &checkErr) {
		return Skip
	}

	var cmdErrs vkgpu.CommandErrors
	if errors.As(err, &cmdErrs) {
		if len(cmdErrs) == 0 {
			return Pass
		}
		return Fail
	}

	return Fail
}

// FromRecover maps a recovered panic to Crash, the verdict reserved
// for a run that never reached a normal pass/skip/fail outcome.
func FromRecover(r interface{}) Verdict {
	if r == nil {
		return Pass
	}
	return Crash
}

// PiglitLine formats the one-line PIGLIT result report the CLI writes
// to stdout, e.g. `PIGLIT: {"result": "fail"}`.
func PiglitLine(v Verdict) string {
	return fmt.Sprintf(`PIGLIT: {"result": "%s"}`, v)
}
