package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/qpubinder/internal/domain"
)

// FileSource reads a catalog document from disk on every load
type FileSource struct {
	path   string
	format Format
}

// NewFileSource creates a file source; the format follows the extension
func NewFileSource(path string) (*FileSource, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, format: format}, nil
}

// Name identifies the source
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Load reads and decodes the file
func (s *FileSource) Load(ctx context.Context) ([]*domain.QPU, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Decode(s.format, data)
}

// MockSource serves a fixed set of demonstration devices
type MockSource struct{}

// NewMockSource creates the built-in demo source
func NewMockSource() *MockSource {
	return &MockSource{}
}

// Name identifies the source
func (s *MockSource) Name() string {
	return "mock"
}

// Load returns fresh copies of the demo devices
func (s *MockSource) Load(ctx context.Context) ([]*domain.QPU, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return MockQPUs(), nil
}

// MockQPUs returns demonstration descriptors covering the common topologies:
// a superconducting line, a superconducting grid, an all-to-all trapped-ion
// device and an offline device.
func MockQPUs() []*domain.QPU {
	return []*domain.QPU{
		{
			ID:          "sc-line-5",
			Name:        "Superconducting line",
			Provider:    "demo",
			QubitCount:  5,
			NativeGates: []string{"x", "sx", "rz", "cx", "measure"},
			Couplers:    line(5),
			Fidelity:    map[string]float64{"x": 0.9995, "sx": 0.9995, "rz": 1, "cx": 0.985, "default": 0.99},
			Workload:    12,
			CostPerShot: 0.00035,
			Available:   true,
		},
		{
			ID:          "sc-grid-9",
			Name:        "Superconducting 3x3 grid",
			Provider:    "demo",
			QubitCount:  9,
			NativeGates: []string{"h", "x", "sx", "rz", "cx", "cz", "measure"},
			Couplers:    grid(3, 3),
			Fidelity:    map[string]float64{"h": 0.999, "x": 0.999, "sx": 0.999, "rz": 1, "cx": 0.97, "cz": 0.975},
			Workload:    30,
			CostPerShot: 0.0003,
			Available:   true,
			MaxDepth:    300,
			MaxShots:    100000,
		},
		{
			ID:          "ion-11",
			Name:        "Trapped-ion all-to-all",
			Provider:    "demo",
			QubitCount:  11,
			NativeGates: []string{"h", "x", "y", "z", "rx", "ry", "rz", "cx", "cz", "swap", "ccx"},
			Couplers:    complete(11),
			Fidelity:    map[string]float64{"cx": 0.995, "ccx": 0.97, "default": 0.9998},
			Workload:    4,
			CostPerShot: 0.01,
			Available:   true,
			MaxShots:    10000,
		},
		{
			ID:          "sc-ring-8",
			Name:        "Superconducting ring (maintenance)",
			Provider:    "demo",
			QubitCount:  8,
			NativeGates: []string{"h", "x", "rz", "cz"},
			Couplers:    append(line(8), domain.Pair{0, 7}),
			Fidelity:    map[string]float64{"default": 0.99},
			CostPerShot: 0.0002,
			Available:   false,
		},
	}
}

func line(n int) []domain.Pair {
	out := make([]domain.Pair, 0, n)
	for i := 0; i+1 < n; i++ {
		out = append(out, domain.Pair{i, i + 1})
	}
	return out
}

func grid(rows, cols int) []domain.Pair {
	var out []domain.Pair
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			q := r*cols + c
			if c+1 < cols {
				out = append(out, domain.Pair{q, q + 1})
			}
			if r+1 < rows {
				out = append(out, domain.Pair{q, q + cols})
			}
		}
	}
	return out
}

func complete(n int) []domain.Pair {
	var out []domain.Pair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, domain.Pair{i, j})
		}
	}
	return out
}
