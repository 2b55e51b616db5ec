package focus

import (
	"encoding/binary"
	"testing"
)

// rowOf packs 16-bit samples little-endian
func rowOf(samples ...uint16) []byte {
	row := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(row[2*i:], s)
	}
	return row
}

func windowOf(prev, center, next []uint16) Window {
	return Window{Previous: rowOf(prev...), Center: rowOf(center...), Next: rowOf(next...)}
}

func TestComputeGreyKernel(t *testing.T) {
	w := windowOf(
		[]uint16{8, 12, 16, 20},
		[]uint16{100, 40, 60, 200},
		[]uint16{4, 28, 32, 36},
	)

	// i=0 is red/blue: corners (8+16+4+32)/4=15, edges (12+100+60+28)/4=50, c=40
	// i=1 is green: (16+32)/2=24, (40+200)/2=120, c=60
	grey := ComputeGrey(w, false)
	if len(grey) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(grey))
	}
	if grey[0] != 105 || grey[1] != 204 {
		t.Errorf("Expected [105 204], got %v", grey)
	}

	// same window starting on green: i=0 green, i=1 red/blue
	grey = ComputeGrey(w, true)
	if grey[0] != (12+28)/2+(100+60)/2+40 {
		t.Errorf("Unexpected green sample %d", grey[0])
	}
	if Contrast(grey) == 0 {
		t.Error("Expected non-zero contrast")
	}
}

func TestContrastFlatField(t *testing.T) {
	flat := make([]uint16, 22)
	for i := range flat {
		flat[i] = 1234
	}
	w := windowOf(flat, flat, flat)
	for _, green := range []bool{false, true} {
		if c := ComputeContrast(w, green); c != 0 {
			t.Errorf("Flat field contrast should be 0, got %d (green=%v)", c, green)
		}
	}
}

func TestContrastOffsetInvariant(t *testing.T) {
	base := [3][]uint16{}
	for r := range base {
		base[r] = make([]uint16, 22)
		for i := range base[r] {
			base[r][i] = uint16((i*37+r*11)%97) * 50
		}
	}

	for _, offset := range []uint16{1, 7, 1000} {
		var shifted [3][]uint16
		for r := range base {
			shifted[r] = make([]uint16, len(base[r]))
			for i, v := range base[r] {
				shifted[r][i] = v + offset
			}
		}
		a := ComputeContrast(windowOf(base[0], base[1], base[2]), false)
		b := ComputeContrast(windowOf(shifted[0], shifted[1], shifted[2]), false)
		if a != b {
			t.Errorf("Offset %d changed contrast: %d vs %d", offset, a, b)
		}
	}
}

func TestContrastTotalVariation(t *testing.T) {
	if c := Contrast(GreyStrip{10, 30, 5, 5, 25}); c != 20+25+0+20 {
		t.Errorf("Expected 65, got %d", c)
	}
	if c := Contrast(nil); c != 0 {
		t.Errorf("Empty strip should score 0, got %d", c)
	}
}
