package pipelinekey

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkrunner-go/internal/shaderstage"
)

func TestDefaults(t *testing.T) {
	k := New()
	if k.PipelineType != Graphics {
		t.Errorf("default PipelineType = %v, want Graphics", k.PipelineType)
	}
	if k.Entrypoint(shaderstage.Vertex) != "main" {
		t.Errorf("default entrypoint = %q, want main", k.Entrypoint(shaderstage.Vertex))
	}
}

func TestSetBool(t *testing.T) {
	k := New()
	if err := k.Set("depthTestEnable", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if k.DepthTestEnable {
		t.Error("expected DepthTestEnable = false")
	}
}

func TestSetEnum(t *testing.T) {
	k := New()
	if err := k.Set("cullMode", "VK_CULL_MODE_BACK_BIT"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if k.CullMode != vk.CullModeFlags(vk.CullModeBackBit) {
		t.Errorf("CullMode = %v, want back bit", k.CullMode)
	}
}

func TestSetOredEnum(t *testing.T) {
	k := New()
	err := k.Set("colorWriteMask", "VK_COLOR_COMPONENT_R_BIT | VK_COLOR_COMPONENT_G_BIT")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	want := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit)
	if k.ColorWriteMask != want {
		t.Errorf("ColorWriteMask = %v, want %v", k.ColorWriteMask, want)
	}
}

func TestSetUnknownProperty(t *testing.T) {
	k := New()
	err := k.Set("notAProperty", "1")
	if err == nil {
		t.Fatal("expected error for unknown property")
	}
}

func TestEqualComputeIgnoresGraphicsState(t *testing.T) {
	a := New()
	a.PipelineType = Compute
	a.SetEntrypoint(shaderstage.Compute, "main")
	b := New()
	b.PipelineType = Compute
	b.SetEntrypoint(shaderstage.Compute, "main")
	b.LineWidth = 5 // irrelevant for compute pipelines

	if !a.Equal(b) {
		t.Error("expected compute keys with same entrypoint to compare equal")
	}
}

func TestEqualGraphicsSensitiveToEntrypoint(t *testing.T) {
	a := New()
	b := New()
	a.SetEntrypoint(shaderstage.Fragment, "main")
	b.SetEntrypoint(shaderstage.Fragment, "other")

	if a.Equal(b) {
		t.Error("expected graphics keys with different fragment entrypoints to differ")
	}
}
