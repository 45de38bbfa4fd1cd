package meter

import (
	"context"
	"math"
)

// RegisterReader decodes channels from a Transport.
// Every method issues exactly one request and never retries.
type RegisterReader struct {
	transport Transport
	order     WordOrder
}

// NewRegisterReader creates a reader over t using order for 32-bit values.
func NewRegisterReader(t Transport, order WordOrder) *RegisterReader {
	return &RegisterReader{transport: t, order: order}
}

// ReadScaled reads an unsigned 32-bit value and multiplies it by scale.
// The result is rounded to the decimals implied by scale (0.1 -> 1, 0.001 -> 3).
func (r *RegisterReader) ReadScaled(ctx context.Context, address uint16, scale float64) (float64, error) {
	raw, err := r.readUint32(ctx, address)
	if err != nil {
		return 0, err
	}
	return roundTo(float64(raw)*scale, decimalsForScale(scale)), nil
}

// ReadLong reads a 32-bit integer, interpreted as two's complement when signed.
func (r *RegisterReader) ReadLong(ctx context.Context, address uint16, signed bool) (int64, error) {
	raw, err := r.readUint32(ctx, address)
	if err != nil {
		return 0, err
	}
	if signed {
		return int64(int32(raw)), nil
	}
	return int64(raw), nil
}

// ReadDecimal reads one 16-bit word and divides it by 10^decimals.
func (r *RegisterReader) ReadDecimal(ctx context.Context, address uint16, decimals int, signed bool) (float64, error) {
	words, err := r.read(ctx, address, 1)
	if err != nil {
		return 0, err
	}

	var v float64
	if signed {
		v = float64(int16(words[0]))
	} else {
		v = float64(words[0])
	}
	return roundTo(v/math.Pow10(decimals), decimals), nil
}

func (r *RegisterReader) readUint32(ctx context.Context, address uint16) (uint32, error) {
	words, err := r.read(ctx, address, 2)
	if err != nil {
		return 0, err
	}
	hi, lo := words[0], words[1]
	if r.order == LowWordFirst {
		hi, lo = lo, hi
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

func (r *RegisterReader) read(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	words, err := r.transport.ReadInputRegisters(ctx, address, quantity)
	if err != nil {
		return nil, &TransportError{Address: address, Err: err}
	}
	if len(words) < int(quantity) {
		return nil, &TransportError{Address: address, Err: ErrShortResponse}
	}
	return words, nil
}

// decimalsForScale returns the fewest decimals that represent scale exactly.
func decimalsForScale(scale float64) int {
	for d := 0; d <= 9; d++ {
		shifted := scale * math.Pow10(d)
		if math.Abs(shifted-math.Round(shifted)) < 1e-9 {
			return d
		}
	}
	return 9
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
