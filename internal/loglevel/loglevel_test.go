package loglevel

import "testing"

func TestDefaultLevelIsInfo(t *testing.T) {
	if Get() != Info {
		t.Fatalf("Get() = %d, want Info", Get())
	}
}

func TestEnabledRespectsOrdering(t *testing.T) {
	Set(Warn)
	if !Enabled(Err) {
		t.Fatalf("Err should be enabled when level is Warn")
	}
	if !Enabled(Warn) {
		t.Fatalf("Warn should be enabled when level is Warn")
	}
	if Enabled(Info) {
		t.Fatalf("Info should not be enabled when level is Warn")
	}
	if Enabled(Debug) {
		t.Fatalf("Debug should not be enabled when level is Warn")
	}
}

func TestSetOff(t *testing.T) {
	Set(Off)
	if Enabled(Err) {
		t.Fatalf("nothing should be enabled when level is Off")
	}
	Set(Info) // restore default for any other test relying on it
}
