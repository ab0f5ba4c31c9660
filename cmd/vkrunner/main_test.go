package main

import (
	"testing"

	"github.com/spaghettifunk/vkrunner-go/internal/script"
)

func TestParseFlagsDefaults(t *testing.T) {
	f, path, err := parseFlags([]string{"test.shader_test"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if path != "test.shader_test" {
		t.Errorf("path = %q, want test.shader_test", path)
	}
	if f.binding != -1 || f.deviceID != -1 {
		t.Errorf("binding/deviceID defaults = %d/%d, want -1/-1", f.binding, f.deviceID)
	}
}

func TestParseFlagsReplace(t *testing.T) {
	f, _, err := parseFlags([]string{"-D", "A=1", "-D", "B=2", "test.shader_test"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if len(f.repl) != 2 {
		t.Fatalf("repl = %#v, want 2 entries", f.repl)
	}
	if f.repl[0].Token != "A" || f.repl[0].Replacement != "1" {
		t.Errorf("repl[0] = %#v", f.repl[0])
	}
}

func TestParseFlagsRejectsBadReplace(t *testing.T) {
	if _, _, err := parseFlags([]string{"-D", "nosign", "test.shader_test"}); err == nil {
		t.Fatal("expected error for -D value without '='")
	}
}

func TestParseFlagsRequiresOneScript(t *testing.T) {
	if _, _, err := parseFlags(nil); err == nil {
		t.Fatal("expected error for missing script path")
	}
	if _, _, err := parseFlags([]string{"a.shader_test", "b.shader_test"}); err == nil {
		t.Fatal("expected error for too many positional args")
	}
}

func TestFindBufferDefaultsToFirst(t *testing.T) {
	scr := &script.Script{Buffers: []script.Buffer{
		{DescSet: 0, Binding: 3},
		{DescSet: 1, Binding: 0},
	}}
	descSet, binding, ok := findBuffer(scr, -1)
	if !ok || descSet != 0 || binding != 3 {
		t.Errorf("findBuffer(-1) = %d, %d, %v, want 0, 3, true", descSet, binding, ok)
	}
}

func TestFindBufferByBinding(t *testing.T) {
	scr := &script.Script{Buffers: []script.Buffer{
		{DescSet: 0, Binding: 3},
		{DescSet: 1, Binding: 0},
	}}
	descSet, binding, ok := findBuffer(scr, 0)
	if !ok || descSet != 1 || binding != 0 {
		t.Errorf("findBuffer(0) = %d, %d, %v, want 1, 0, true", descSet, binding, ok)
	}
}

func TestFindBufferNotFound(t *testing.T) {
	scr := &script.Script{Buffers: []script.Buffer{{DescSet: 0, Binding: 3}}}
	if _, _, ok := findBuffer(scr, 9); ok {
		t.Error("findBuffer(9) should not find a buffer bound to 9")
	}
}
