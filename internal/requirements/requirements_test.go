package requirements

import "testing"

func TestMakeAndExtractVersion(t *testing.T) {
	v := MakeVersion(1, 2, 3)
	major, minor, patch := ExtractVersion(v)
	if major != 1 || minor != 2 || patch != 3 {
		t.Errorf("ExtractVersion(%d) = %d.%d.%d, want 1.2.3", v, major, minor, patch)
	}
}

func TestAddBaseFeature(t *testing.T) {
	r := New()
	r.Add("samplerAnisotropy")
	if len(r.baseFeatures) != 1 {
		t.Fatalf("expected one base feature recorded, got %d", len(r.baseFeatures))
	}
	if len(r.Extensions()) != 0 {
		t.Errorf("base feature requirement should not add an extension")
	}
}

func TestAddExtensionFeatureImpliesExtension(t *testing.T) {
	r := New()
	r.Add("variablePointers")
	exts := r.Extensions()
	if len(exts) != 1 || exts[0] != "VK_KHR_variable_pointers" {
		t.Fatalf("Extensions() = %v, want [VK_KHR_variable_pointers]", exts)
	}
}

func TestAddPlainExtension(t *testing.T) {
	r := New()
	r.Add("VK_KHR_swapchain")
	exts := r.Extensions()
	if len(exts) != 1 || exts[0] != "VK_KHR_swapchain" {
		t.Fatalf("Extensions() = %v, want [VK_KHR_swapchain]", exts)
	}
}

func TestDefaultVersion(t *testing.T) {
	r := New()
	if r.Version() != MakeVersion(1, 0, 0) {
		t.Errorf("default version = %#x, want 1.0.0", r.Version())
	}
}
