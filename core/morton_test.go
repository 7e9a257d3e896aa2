package core

import (
	"errors"
	"testing"

	"github.com/gridfire/gridfire"
)

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(16384, 512, 16384)
	coords := [][3]uint32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{31, 31, 31},
		{12345, 300, 9999},
		{16383, 511, 16383},
	}
	for _, p := range coords {
		code, err := c.Encode(p[0], p[1], p[2])
		if err != nil {
			t.Fatalf("Encode(%v): %v", p, err)
		}
		x, y, z := c.Decode(code)
		if x != p[0] || y != p[1] || z != p[2] {
			t.Errorf("round trip %v -> %d -> (%d,%d,%d)", p, code, x, y, z)
		}
	}
}

func TestCodecAxisInterleave(t *testing.T) {
	c := NewCodec(64, 64, 64)
	// Single-axis unit steps map to the three lowest interleaved bits.
	cases := []struct {
		x, y, z uint32
		want    uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{0, 1, 0, 2},
		{0, 0, 1, 4},
		{1, 1, 1, 7},
		{2, 0, 0, 8},
	}
	for _, tc := range cases {
		got, err := c.Encode(tc.x, tc.y, tc.z)
		if err != nil {
			t.Fatalf("Encode(%d,%d,%d): %v", tc.x, tc.y, tc.z, err)
		}
		if got != tc.want {
			t.Errorf("Encode(%d,%d,%d) = %d, want %d", tc.x, tc.y, tc.z, got, tc.want)
		}
	}
}

// The world buffer reads a voxel's chunk-local offset straight out of the low
// 15 bits of its world Morton code; this only holds if world and local codecs
// interleave axes in the same order.
func TestCodecLowBitsAreLocalCode(t *testing.T) {
	c := NewCodec(512, 512, 512)
	coords := [][3]uint32{
		{0, 0, 0},
		{31, 31, 31},
		{32, 0, 0},
		{33, 64, 95},
		{100, 200, 300},
		{511, 511, 511},
	}
	for _, p := range coords {
		code, err := c.Encode(p[0], p[1], p[2])
		if err != nil {
			t.Fatalf("Encode(%v): %v", p, err)
		}
		local, err := EncodeLocal(p[0]&31, p[1]&31, p[2]&31)
		if err != nil {
			t.Fatalf("EncodeLocal(%v): %v", p, err)
		}
		if uint32(code&(gridfire.VoxelsPerChunk-1)) != local {
			t.Errorf("Encode(%v) low bits = %d, want local code %d",
				p, code&(gridfire.VoxelsPerChunk-1), local)
		}
	}
}

func TestCodecRejectsOutOfDomain(t *testing.T) {
	c := NewCodec(8, 8, 8)
	for _, p := range [][3]uint32{{8, 0, 0}, {0, 8, 0}, {0, 0, 8}, {100, 100, 100}} {
		if _, err := c.Encode(p[0], p[1], p[2]); !errors.Is(err, gridfire.ErrInvalidCoordinate) {
			t.Errorf("Encode(%v) err = %v, want ErrInvalidCoordinate", p, err)
		}
	}
}

func TestLocalCodecDenseBijection(t *testing.T) {
	seen := make([]bool, gridfire.VoxelsPerChunk)
	for x := uint32(0); x < gridfire.ChunkSize; x++ {
		for y := uint32(0); y < gridfire.ChunkSize; y++ {
			for z := uint32(0); z < gridfire.ChunkSize; z++ {
				m, err := EncodeLocal(x, y, z)
				if err != nil {
					t.Fatalf("EncodeLocal(%d,%d,%d): %v", x, y, z, err)
				}
				if m >= gridfire.VoxelsPerChunk {
					t.Fatalf("EncodeLocal(%d,%d,%d) = %d out of range", x, y, z, m)
				}
				if seen[m] {
					t.Fatalf("offset %d produced twice", m)
				}
				seen[m] = true

				dx, dy, dz := DecodeLocal(m)
				if dx != x || dy != y || dz != z {
					t.Fatalf("DecodeLocal(%d) = (%d,%d,%d), want (%d,%d,%d)", m, dx, dy, dz, x, y, z)
				}
			}
		}
	}
}

func TestLocalCodecRejectsOutOfDomain(t *testing.T) {
	if _, err := EncodeLocal(32, 0, 0); !errors.Is(err, gridfire.ErrInvalidCoordinate) {
		t.Errorf("EncodeLocal(32,0,0) err = %v, want ErrInvalidCoordinate", err)
	}
}
