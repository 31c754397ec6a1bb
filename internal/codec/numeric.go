package codec

import (
	"fmt"
	"math/big"
)

// toUint coerces value (any Go unsigned integer type, a non-negative int
// or int64, or a decimal string) to a uint64, checking it fits in bits.
func toUint(value any, bits int) (uint64, error) {
	var u uint64
	switch v := value.(type) {
	case uint64:
		u = v
	case uint32:
		u = uint64(v)
	case uint16:
		u = uint64(v)
	case uint8:
		u = uint64(v)
	case uint:
		u = uint64(v)
	case int:
		if v < 0 {
			return 0, typeMismatch("unsigned integer", value)
		}
		u = uint64(v)
	case int64:
		if v < 0 {
			return 0, typeMismatch("unsigned integer", value)
		}
		u = uint64(v)
	case string:
		bi, ok := new(big.Int).SetString(v, 10)
		if !ok || bi.Sign() < 0 || !bi.IsUint64() {
			return 0, typeMismatch("unsigned decimal string", value)
		}
		u = bi.Uint64()
	default:
		return 0, typeMismatch("unsigned integer", value)
	}
	if bits < 64 && u >= (uint64(1)<<uint(bits)) {
		return 0, typeMismatch(fmt.Sprintf("u%d in range", bits), value)
	}
	return u, nil
}

// toInt coerces value to an int64, checking it fits in bits.
func toInt(value any, bits int) (int64, error) {
	var i int64
	switch v := value.(type) {
	case int64:
		i = v
	case int32:
		i = int64(v)
	case int16:
		i = int64(v)
	case int8:
		i = int64(v)
	case int:
		i = int64(v)
	case string:
		bi, ok := new(big.Int).SetString(v, 10)
		if !ok || !bi.IsInt64() {
			return 0, typeMismatch("signed decimal string", value)
		}
		i = bi.Int64()
	default:
		return 0, typeMismatch("signed integer", value)
	}
	if bits < 64 {
		min := int64(-1) << uint(bits-1)
		max := (int64(1) << uint(bits-1)) - 1
		if i < min || i > max {
			return 0, typeMismatch(fmt.Sprintf("i%d in range", bits), value)
		}
	}
	return i, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// toUint128 splits an unsigned 128-bit value (given as *big.Int, a decimal
// string, or a native uint64) into low and high 64-bit halves, little
// half first, per §4.5.
func toUint128(value any) (lo, hi uint64, err error) {
	bi, err := toBigInt(value, false)
	if err != nil {
		return 0, 0, err
	}
	return splitUint128(bi)
}

func toInt128(value any) (lo, hi uint64, err error) {
	bi, err := toBigInt(value, true)
	if err != nil {
		return 0, 0, err
	}
	// Two's complement over 128 bits.
	if bi.Sign() < 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		bi = new(big.Int).Add(mod, bi)
	}
	return splitUint128(bi)
}

func toBigInt(value any, signed bool) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return v, nil
	case string:
		bi, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, typeMismatch("decimal string", value)
		}
		return bi, nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	default:
		return nil, typeMismatch("128-bit integer", value)
	}
}

func splitUint128(bi *big.Int) (lo, hi uint64, err error) {
	mask := new(big.Int).SetUint64(^uint64(0))
	loBI := new(big.Int).And(bi, mask)
	hiBI := new(big.Int).Rsh(bi, 64)
	hiBI = new(big.Int).And(hiBI, mask)
	return loBI.Uint64(), hiBI.Uint64(), nil
}

// bigFromHalves reassembles a 128-bit unsigned value from its two halves.
func bigFromHalves(lo, hi uint64) *big.Int {
	bi := new(big.Int).SetUint64(hi)
	bi.Lsh(bi, 64)
	bi.Or(bi, new(big.Int).SetUint64(lo))
	return bi
}

// signedFromHalves interprets the 128-bit two's-complement value in
// (lo,hi) as a signed big.Int, adjusting above the half-point per §4.5.
func signedFromHalves(lo, hi uint64) *big.Int {
	bi := bigFromHalves(lo, hi)
	half := new(big.Int).Lsh(big.NewInt(1), 127)
	if bi.Cmp(half) >= 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 128)
		bi = new(big.Int).Sub(bi, mod)
	}
	return bi
}
