package meter

import (
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
)

func TestDefaultRX380(t *testing.T) {
	m, err := NewRegisterMap(DefaultRX380(), HighWordFirst)
	if err != nil {
		t.Fatalf("NewRegisterMap(DefaultRX380()) error = %v", err)
	}
	if m.Len() != 24 {
		t.Errorf("Len() = %d, want 24", m.Len())
	}

	names := m.Names()
	if names[0] != "voltage_l1" {
		t.Errorf("Names()[0] = %q, want voltage_l1", names[0])
	}
	if names[len(names)-1] != "total_apparent_energy" {
		t.Errorf("last channel = %q, want total_apparent_energy", names[len(names)-1])
	}
}

func TestNewRegisterMap_Validation(t *testing.T) {
	tests := []struct {
		name    string
		regs    []Register
		wantErr string
	}{
		{
			name:    "empty",
			regs:    nil,
			wantErr: "no registers",
		},
		{
			name:    "bad name",
			regs:    []Register{{Name: "Voltage L1", Kind: KindLong}},
			wantErr: "must match",
		},
		{
			name: "duplicate",
			regs: []Register{
				{Name: "frequency", Kind: KindDecimal, Decimals: 2},
				{Name: "frequency", Kind: KindDecimal, Decimals: 2},
			},
			wantErr: "duplicate",
		},
		{
			name:    "zero scale",
			regs:    []Register{{Name: "voltage_l1", Kind: KindScaled}},
			wantErr: "scale must be positive",
		},
		{
			name:    "too many decimals",
			regs:    []Register{{Name: "frequency", Kind: KindDecimal, Decimals: 7}},
			wantErr: "decimals",
		},
		{
			name:    "unknown kind",
			regs:    []Register{{Name: "frequency"}},
			wantErr: "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegisterMap(tt.regs, HighWordFirst)
			if !errors.Is(err, ErrInvalidRegisterMap) {
				t.Fatalf("error = %v, want ErrInvalidRegisterMap", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterMap_Immutable(t *testing.T) {
	m, err := NewRegisterMap([]Register{{Name: "frequency", Kind: KindDecimal, Decimals: 2}}, HighWordFirst)
	if err != nil {
		t.Fatalf("NewRegisterMap() error = %v", err)
	}

	names := m.Names()
	names[0] = "changed"
	regs := m.Registers()
	regs[0].Address = 9999

	if m.Names()[0] != "frequency" {
		t.Error("Names() exposed internal slice")
	}
	if m.Registers()[0].Address != 0 {
		t.Error("Registers() exposed internal slice")
	}
}

func TestParseWordOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    WordOrder
		wantErr bool
	}{
		{"", HighWordFirst, false},
		{"high_first", HighWordFirst, false},
		{"LOW_FIRST", LowWordFirst, false},
		{"middle", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseWordOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWordOrder(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseWordOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	t.Run("default map", func(t *testing.T) {
		m, err := FromConfig(config.MeterConfig{WordOrder: "high_first"})
		if err != nil {
			t.Fatalf("FromConfig() error = %v", err)
		}
		if m.Len() != len(DefaultRX380()) {
			t.Errorf("Len() = %d, want %d", m.Len(), len(DefaultRX380()))
		}
	})

	t.Run("custom map", func(t *testing.T) {
		m, err := FromConfig(config.MeterConfig{
			WordOrder: "low_first",
			Registers: []config.RegisterConfig{
				{Name: "voltage_l1", Address: 4034, Kind: "scaled", Scale: 0.1, Unit: "V"},
				{Name: "frequency", Address: 4019, Kind: "decimal", Decimals: 2},
			},
		})
		if err != nil {
			t.Fatalf("FromConfig() error = %v", err)
		}
		if m.WordOrder() != LowWordFirst {
			t.Errorf("WordOrder() = %v, want LowWordFirst", m.WordOrder())
		}
		regs := m.Registers()
		if regs[1].Kind != KindDecimal || regs[1].Decimals != 2 {
			t.Errorf("Registers()[1] = %+v, want decimal/2", regs[1])
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := FromConfig(config.MeterConfig{
			Registers: []config.RegisterConfig{{Name: "x", Kind: "float"}},
		})
		if !errors.Is(err, ErrInvalidRegisterMap) {
			t.Errorf("error = %v, want ErrInvalidRegisterMap", err)
		}
	})
}
