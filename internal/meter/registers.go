package meter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
)

// Kind selects how a channel's raw words are decoded.
type Kind int

const (
	// KindScaled is an unsigned 32-bit value multiplied by Scale.
	KindScaled Kind = iota + 1

	// KindLong is a 32-bit integer, signed when Register.Signed is set.
	KindLong

	// KindDecimal is a single 16-bit word divided by 10^Decimals.
	KindDecimal
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindScaled:
		return "scaled"
	case KindLong:
		return "long"
	case KindDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "scaled":
		return KindScaled, nil
	case "long":
		return KindLong, nil
	case "decimal":
		return KindDecimal, nil
	default:
		return 0, fmt.Errorf("%w: unknown register kind %q", ErrInvalidRegisterMap, s)
	}
}

// WordOrder is the order of the two 16-bit words of a 32-bit value.
type WordOrder int

const (
	// HighWordFirst puts the most significant word at the lower address.
	HighWordFirst WordOrder = iota

	// LowWordFirst puts the least significant word at the lower address.
	LowWordFirst
)

// ParseWordOrder converts a configuration string to a WordOrder.
// An empty string selects HighWordFirst.
func ParseWordOrder(s string) (WordOrder, error) {
	switch strings.ToLower(s) {
	case "", "high_first":
		return HighWordFirst, nil
	case "low_first":
		return LowWordFirst, nil
	default:
		return 0, fmt.Errorf("%w: unknown word order %q", ErrInvalidRegisterMap, s)
	}
}

// Register describes one named channel.
type Register struct {
	Name     string
	Address  uint16
	Kind     Kind
	Scale    float64
	Decimals int
	Signed   bool
	Unit     string
}

// read decodes the register through r with exactly one transport request.
func (reg Register) read(ctx context.Context, r *RegisterReader) (float64, error) {
	switch reg.Kind {
	case KindScaled:
		return r.ReadScaled(ctx, reg.Address, reg.Scale)
	case KindLong:
		v, err := r.ReadLong(ctx, reg.Address, reg.Signed)
		return float64(v), err
	case KindDecimal:
		return r.ReadDecimal(ctx, reg.Address, reg.Decimals, reg.Signed)
	default:
		return 0, fmt.Errorf("%w: channel %s has kind %s", ErrInvalidRegisterMap, reg.Name, reg.Kind)
	}
}

// channelName restricts names to identifiers usable as SQL columns.
var channelName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// maxDecimals bounds the decimal kind.
const maxDecimals = 6

// RegisterMap is the ordered, immutable channel set read on every cycle.
//
// Thread Safety: A RegisterMap is never modified after construction and may
// be shared freely.
type RegisterMap struct {
	registers []Register
	names     []string
	order     WordOrder
}

// NewRegisterMap validates regs and builds a map.
//
// Parameters:
//   - regs: Channels in output order
//   - order: Word order for 32-bit kinds
//
// Returns:
//   - *RegisterMap: The validated map
//   - error: ErrInvalidRegisterMap listing every problem found
func NewRegisterMap(regs []Register, order WordOrder) (*RegisterMap, error) {
	if len(regs) == 0 {
		return nil, fmt.Errorf("%w: no registers", ErrInvalidRegisterMap)
	}

	var errs []string
	seen := make(map[string]bool, len(regs))
	for i, reg := range regs {
		if !channelName.MatchString(reg.Name) {
			errs = append(errs, fmt.Sprintf("register %d: name %q must match %s", i, reg.Name, channelName))
		}
		if seen[reg.Name] {
			errs = append(errs, fmt.Sprintf("register %d: duplicate name %q", i, reg.Name))
		}
		seen[reg.Name] = true

		switch reg.Kind {
		case KindScaled:
			if reg.Scale <= 0 {
				errs = append(errs, fmt.Sprintf("register %s: scale must be positive", reg.Name))
			}
		case KindLong:
		case KindDecimal:
			if reg.Decimals < 0 || reg.Decimals > maxDecimals {
				errs = append(errs, fmt.Sprintf("register %s: decimals must be 0-%d", reg.Name, maxDecimals))
			}
		default:
			errs = append(errs, fmt.Sprintf("register %s: unknown kind %s", reg.Name, reg.Kind))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n  - %s", ErrInvalidRegisterMap, strings.Join(errs, "\n  - "))
	}

	m := &RegisterMap{
		registers: make([]Register, len(regs)),
		names:     make([]string, len(regs)),
		order:     order,
	}
	copy(m.registers, regs)
	for i, reg := range regs {
		m.names[i] = reg.Name
	}
	return m, nil
}

// Registers returns a copy of the channels in map order.
func (m *RegisterMap) Registers() []Register {
	out := make([]Register, len(m.registers))
	copy(out, m.registers)
	return out
}

// Names returns a copy of the channel names in map order.
func (m *RegisterMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len returns the number of channels.
func (m *RegisterMap) Len() int {
	return len(m.registers)
}

// WordOrder returns the word order used for 32-bit kinds.
func (m *RegisterMap) WordOrder() WordOrder {
	return m.order
}

// DefaultRX380 returns the RX380 input-register layout.
func DefaultRX380() []Register {
	volts := func(name string, addr uint16) Register {
		return Register{Name: name, Address: addr, Kind: KindScaled, Scale: 0.1, Unit: "V"}
	}
	amps := func(name string, addr uint16) Register {
		return Register{Name: name, Address: addr, Kind: KindScaled, Scale: 0.001, Unit: "A"}
	}

	return []Register{
		volts("voltage_l1", 4034),
		volts("voltage_l2", 4036),
		volts("voltage_l3", 4038),
		volts("voltage_l12", 4028),
		volts("voltage_l23", 4030),
		volts("voltage_l31", 4032),
		volts("voltage_l12_max", 4124),
		volts("voltage_l23_max", 4128),
		volts("voltage_l31_max", 4132),
		volts("voltage_l12_min", 4212),
		volts("voltage_l23_min", 4216),
		volts("voltage_l31_min", 4220),
		amps("current_l1", 4020),
		amps("current_l2", 4022),
		amps("current_l3", 4024),
		amps("current_ln", 4026),
		{Name: "total_real_power", Address: 4012, Kind: KindLong, Signed: true, Unit: "W"},
		{Name: "total_apparent_power", Address: 4014, Kind: KindLong, Unit: "VA"},
		{Name: "total_reactive_power", Address: 4016, Kind: KindLong, Signed: true, Unit: "VAR"},
		{Name: "total_power_factor", Address: 4018, Kind: KindDecimal, Decimals: 3, Signed: true},
		{Name: "frequency", Address: 4019, Kind: KindDecimal, Decimals: 2, Unit: "Hz"},
		{Name: "total_real_energy", Address: 4002, Kind: KindLong, Unit: "kWh"},
		{Name: "total_reactive_energy", Address: 4010, Kind: KindLong, Unit: "kVARh"},
		{Name: "total_apparent_energy", Address: 4006, Kind: KindLong, Unit: "kVAh"},
	}
}

// FromConfig builds the register map described by cfg.
// The RX380 layout is used when cfg.Registers is empty.
func FromConfig(cfg config.MeterConfig) (*RegisterMap, error) {
	order, err := ParseWordOrder(cfg.WordOrder)
	if err != nil {
		return nil, err
	}
	if len(cfg.Registers) == 0 {
		return NewRegisterMap(DefaultRX380(), order)
	}

	regs := make([]Register, 0, len(cfg.Registers))
	for _, rc := range cfg.Registers {
		kind, err := ParseKind(rc.Kind)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", rc.Name, err)
		}
		regs = append(regs, Register{
			Name:     rc.Name,
			Address:  rc.Address,
			Kind:     kind,
			Scale:    rc.Scale,
			Decimals: rc.Decimals,
			Signed:   rc.Signed,
			Unit:     rc.Unit,
		})
	}
	return NewRegisterMap(regs, order)
}
