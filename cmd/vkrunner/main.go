// Command vkrunner is the thin CLI front-end: it loads one script,
// runs its [test] section against a real device, and reports the
// merged pass/skip/fail/crash verdict the way piglit's subtest
// runner expects.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/spaghettifunk/vkrunner-go/internal/ppm"
	"github.com/spaghettifunk/vkrunner-go/internal/rconfig"
	"github.com/spaghettifunk/vkrunner-go/internal/rlog"
	"github.com/spaghettifunk/vkrunner-go/internal/result"
	"github.com/spaghettifunk/vkrunner-go/internal/script"
	"github.com/spaghettifunk/vkrunner-go/internal/stream"
	"github.com/spaghettifunk/vkrunner-go/internal/vkgpu"
)

// replacements accumulates repeated -D/--replace TOK=REPL flags.
type replacements []stream.TokenReplacement

func (r *replacements) String() string {
	parts := make([]string, len(*r))
	for i, tr := range *r {
		parts[i] = tr.Token + "=" + tr.Replacement
	}
	return strings.Join(parts, ",")
}

func (r *replacements) Set(value string) error {
	tok, repl, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("invalid -D value %q, want TOK=REPL", value)
	}
	*r = append(*r, stream.TokenReplacement{Token: tok, Replacement: repl})
	return nil
}

type flags struct {
	image      string
	buffer     string
	binding    int // -1 means "not set, default to the first buffer"
	disasm     bool
	quiet      bool
	watch      bool
	deviceID   int // -1 means "not set"
	repl       replacements
	configTOML string
}

func parseFlags(args []string) (*flags, string, error) {
	fs := flag.NewFlagSet("vkrunner", flag.ContinueOnError)
	f := &flags{}

	fs.StringVar(&f.image, "i", "", "dump the rendered color attachment as a PPM to FILE")
	fs.StringVar(&f.image, "image", "", "dump the rendered color attachment as a PPM to FILE")
	fs.StringVar(&f.buffer, "b", "", "dump the final contents of a buffer object to FILE")
	fs.StringVar(&f.buffer, "buffer", "", "dump the final contents of a buffer object to FILE")
	fs.IntVar(&f.binding, "B", -1, "which buffer binding to dump with -b, defaults to the first buffer")
	fs.IntVar(&f.binding, "binding", -1, "which buffer binding to dump with -b, defaults to the first buffer")
	fs.BoolVar(&f.disasm, "d", false, "print shader disassembly as each stage compiles")
	fs.BoolVar(&f.disasm, "disasm", false, "print shader disassembly as each stage compiles")
	fs.BoolVar(&f.quiet, "q", false, "suppress the PIGLIT result line on a pass")
	fs.BoolVar(&f.quiet, "quiet", false, "suppress the PIGLIT result line on a pass")
	fs.BoolVar(&f.watch, "watch", false, "re-run the script whenever it changes on disk")
	fs.IntVar(&f.deviceID, "device-id", -1, "1-based index into vkEnumeratePhysicalDevices, not set by default")
	fs.Var(&f.repl, "D", "TOK=REPL token substitution, may be repeated")
	fs.Var(&f.repl, "replace", "TOK=REPL token substitution, may be repeated")
	fs.StringVar(&f.configTOML, "config", "", "optional TOML config file, env vars always take priority")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return nil, "", fmt.Errorf("expected exactly one script path, got %d", len(rest))
	}
	return f, rest[0], nil
}

func main() {
	f, scriptPath, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if f.quiet {
		rlog.SetLevel(log.WarnLevel)
	}

	runID := uuid.New().String()
	logger := rlog.Sub("run_id", runID)

	verdict, err := runOnce(f, scriptPath, logger)
	if err != nil {
		logger.Error("run failed", "err", err)
	}

	if !f.watch {
		reportAndExit(f, verdict)
	}

	watchAndRerun(f, scriptPath, logger)
}

// runOnce loads and executes one script end to end, returning the
// merged verdict for it. A panic anywhere in the Vulkan call chain is
// recovered and reported as Crash rather than taking the process down
// the way a piglit subtest runner expects every result to come back
// cleanly.
func runOnce(f *flags, scriptPath string, logger *log.Logger) (v result.Verdict, runErr error) {
	defer func() {
		if r := recover(); r != nil {
			v = result.FromRecover(r)
			runErr = fmt.Errorf("panic: %v", r)
		}
	}()

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return result.Fail, err
	}

	scr, err := script.LoadWithReplacements(scriptPath, string(source), f.repl)
	if err != nil {
		return result.Fail, err
	}

	cfg, err := rconfig.Load(f.configTOML)
	if err != nil {
		return result.Fail, err
	}

	var deviceID *int
	if f.deviceID != -1 {
		if f.deviceID == 0 {
			return result.Fail, fmt.Errorf("--device-id 0 is invalid, device indices are 1-based")
		}
		id := f.deviceID - 1
		deviceID = &id
	}
	if cfg.DeviceID != nil && deviceID == nil {
		deviceID = cfg.DeviceID
	}

	ctx, err := vkgpu.New(scr.Req, deviceID, cfg.AlwaysFlushMemory)
	if err != nil {
		return result.FromError(err), err
	}
	defer ctx.Close()

	window, err := vkgpu.NewWindow(ctx, scr.Window)
	if err != nil {
		return result.FromError(err), err
	}
	defer window.Close()

	pipelineSet, err := vkgpu.NewPipelineSet(logger, window, cfg, scr, f.disasm)
	if err != nil {
		return result.FromError(err), err
	}
	defer pipelineSet.Close()

	var dump *vkgpu.BufferDump
	var bufferFile *os.File
	if f.buffer != "" {
		bufferFile, err = os.Create(f.buffer)
		if err != nil {
			return result.Fail, err
		}
		defer bufferFile.Close()
		descSet, binding, ok := findBuffer(scr, f.binding)
		if !ok {
			return result.Fail, fmt.Errorf("no buffer with binding %d was found", f.binding)
		}
		dump = &vkgpu.BufferDump{DescSet: descSet, Binding: binding, Dest: bufferFile}
	}

	runErr = vkgpu.RunAndDump(window, pipelineSet, scr, dump)

	if f.image != "" && runErr == nil {
		if err := dumpImage(f.image, scr, window); err != nil {
			logger.Error("image dump failed", "err", err)
		}
	}

	return result.FromScript(scr, runErr), runErr
}

// findBuffer resolves -B/--binding to a descSet:binding pair: binding
// < 0 means -B was never given, which dumps the script's first
// declared buffer; otherwise it looks up the buffer with that binding
// number, regardless of which descriptor set declared it.
func findBuffer(scr *script.Script, binding int) (descSet, foundBinding uint32, ok bool) {
	if binding < 0 {
		if len(scr.Buffers) == 0 {
			return 0, 0, false
		}
		return scr.Buffers[0].DescSet, scr.Buffers[0].Binding, true
	}
	for _, b := range scr.Buffers {
		if b.Binding == uint32(binding) {
			return b.DescSet, b.Binding, true
		}
	}
	return 0, 0, false
}

func dumpImage(path string, scr *script.Script, window *vkgpu.Window) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return ppm.Write(
		f,
		scr.Window.ColorFormat,
		window.LinearMemoryMap(),
		window.LinearMemoryStride(),
		scr.Window.Width,
		scr.Window.Height,
	)
}

func printVerdict(quiet bool, v result.Verdict) {
	if !(quiet && v == result.Pass) {
		fmt.Println(result.PiglitLine(v))
	}
}

func reportAndExit(f *flags, v result.Verdict) {
	printVerdict(f.quiet, v)
	if v == result.Pass || v == result.Skip {
		os.Exit(0)
	}
	os.Exit(1)
}

// watchAndRerun re-runs the script every time it changes on disk,
// the --watch dev-loop that supplements the one-shot-only CLI with an
// iterative edit/compile/probe cycle. It never returns; interrupt the
// process to stop it.
func watchAndRerun(f *flags, scriptPath string, logger *log.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Fatal("failed to start watcher", "err", err)
	}
	defer watcher.Close()

	if err := watcher.Add(scriptPath); err != nil {
		logger.Fatal("failed to watch script", "err", err)
	}

	logger.Info("watching for changes", "path", scriptPath)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			verdict, err := runOnce(f, scriptPath, logger)
			if err != nil {
				logger.Error("run failed", "err", err)
			}
			printVerdict(f.quiet, verdict)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "err", err)
		}
	}
}
