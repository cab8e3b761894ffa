package protocol

import (
	"fmt"
	"reflect"
	"testing"
)

func TestChipInfoFormat(t *testing.T) {
	info := ChipInfo{
		"chip_id":   uint32(0x00330000),
		"flash":     uint16(0x4000),
		"signed":    int(-1),
		"json":      float64(255),
		"negjson":   float64(-2),
		"small":     int16(0x12),
		"byte":      int8(-1),
		"name":      "CH32V003",
		"something": true,
	}

	tests := []struct {
		key  string
		want string
	}{
		{"chip_id", "00330000"},
		{"flash", "00004000"},
		{"signed", "ffffffff"},
		{"json", "000000ff"},
		{"negjson", "fffffffe"},
		{"small", "00000012"},
		{"byte", "ffffffff"},
		{"name", "CH32V003"},
		{"something", "true"},
		{"missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := info.Format(tt.key); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestChipInfoKeys(t *testing.T) {
	info := ChipInfo{"b": 1, "a": 2, "c": 3}
	if got := info.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestChipInfoClone(t *testing.T) {
	info := ChipInfo{"chip_id": uint32(1)}
	clone := info.Clone()
	clone["chip_id"] = uint32(2)

	if info["chip_id"] != uint32(1) {
		t.Error("Clone() shares storage with the original")
	}
	if ChipInfo(nil).Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestCheckStatus(t *testing.T) {
	if err := CheckStatus("boot", StatusSuccess); err != nil {
		t.Errorf("CheckStatus(success) = %v", err)
	}

	err := CheckStatus("boot", 3)
	if !IsStatusError(err) {
		t.Fatalf("CheckStatus(3) = %v, want *StatusError", err)
	}
	if want := "boot failed: driver status (3)"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if want := "write image failed: transport error (-1)"; (&StatusError{Operation: "write image", Code: StatusTransportError}).Error() != want {
		t.Errorf("transport error message mismatch")
	}
}

func TestIsStatusErrorWrapped(t *testing.T) {
	wrapped := fmt.Errorf("write image: %w", CheckStatus("write image", 4))
	if !IsStatusError(wrapped) {
		t.Errorf("IsStatusError(%v) = false, want true", wrapped)
	}
	if IsStatusError(fmt.Errorf("plain")) {
		t.Error("IsStatusError(plain) = true")
	}
}
