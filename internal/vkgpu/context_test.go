package vkgpu

import "testing"

func TestCombineDeviceErrorsNoDevices(t *testing.T) {
	err := combineDeviceErrors(nil)
	ve, ok := err.(*Error)
	if !ok || !ve.Incompatible {
		t.Fatalf("want incompatible error, got %v", err)
	}
	if err.Error() != "The Vulkan instance reported zero drivers" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestCombineDeviceErrorsSingle(t *testing.T) {
	want := incompatiblef("Device has no graphics queue family")
	err := combineDeviceErrors([]error{want})
	if err != want {
		t.Errorf("expected the single error to pass through unchanged")
	}
}

func TestCombineDeviceErrorsAllIncompatible(t *testing.T) {
	errs := []error{
		incompatiblef("Device has no graphics queue family"),
		incompatiblef("Missing required extension: madeup_extension"),
	}
	err := combineDeviceErrors(errs)
	ve, ok := err.(*Error)
	if !ok || !ve.Incompatible {
		t.Fatalf("want incompatible error, got %v (%T)", err, err)
	}
	want := "0: Device has no graphics queue family\n" +
		"1: Missing required extension: madeup_extension"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestCombineDeviceErrorsOneFailureMakesAllFailure(t *testing.T) {
	errs := []error{
		incompatiblef("Device has no graphics queue family"),
		failuref("vkEnumerateDeviceExtensionProperties failed"),
	}
	err := combineDeviceErrors(errs)
	ve, ok := err.(*Error)
	if !ok || ve.Incompatible {
		t.Fatalf("want non-incompatible (failure) error, got %v", err)
	}
}

func TestSafeStringNulTerminates(t *testing.T) {
	if got := safeString("vkrunner"); got != "vkrunner\x00" {
		t.Errorf("safeString = %q", got)
	}
}
