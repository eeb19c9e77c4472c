package backend

import (
	"slices"
	"testing"
)

func TestRegisterGet(t *testing.T) {
	Register("fake", func() Device { return NewNullDevice() })
	defer Unregister("fake")

	if !IsRegistered("fake") {
		t.Fatal("fake device not registered")
	}
	if d := Get("fake"); d == nil {
		t.Fatal("Get returned nil for registered device")
	}
	if !slices.Contains(Available(), "fake") {
		t.Error("Available does not list fake device")
	}
}

func TestGetUnknown(t *testing.T) {
	if d := Get("no-such-device"); d != nil {
		t.Errorf("Get for unknown name = %v, want nil", d)
	}
}

func TestUnregister(t *testing.T) {
	Register("gone", func() Device { return NewNullDevice() })
	Unregister("gone")
	if IsRegistered("gone") {
		t.Error("device still registered after Unregister")
	}
}

func TestDefaultFallsBackToNull(t *testing.T) {
	// Only the null device is linked into this test binary.
	d := Default()
	if d == nil {
		t.Fatal("Default returned nil")
	}
	if d.Name() != DeviceNull {
		t.Errorf("Default device = %q, want %q", d.Name(), DeviceNull)
	}
}
