package chain

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrInvalidArgument = fmt.Errorf("invalid constructor argument: %w", domain.ErrConfiguration)

// ConvertArgs maps loosely typed values, as they come out of a YAML module or
// a resolved step reference, onto the Go types the ABI encoder expects.
func ConvertArgs(inputs abi.Arguments, args []any) ([]any, error) {
	if len(inputs) != len(args) {
		return nil, fmt.Errorf("%w: constructor takes %d arguments, got %d", ErrInvalidArgument, len(inputs), len(args))
	}

	converted := make([]any, len(args))
	for i, input := range inputs {
		value, err := convert(input.Type, args[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("%w: argument '%s' (%s): %w", ErrInvalidArgument, name, input.Type, err)
		}
		converted[i] = value
	}
	return converted, nil
}

func convert(t abi.Type, value any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		return toAddress(value)

	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(value)
		if err != nil {
			return nil, err
		}
		if err := checkRange(t, n); err != nil {
			return nil, err
		}
		if t.Size > 64 {
			return n, nil
		}
		if t.T == abi.UintTy {
			return reflect.ValueOf(n.Uint64()).Convert(t.GetType()).Interface(), nil
		}
		return reflect.ValueOf(n.Int64()).Convert(t.GetType()).Interface(), nil

	case abi.BoolTy:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
		return nil, fmt.Errorf("expected bool, got %T", value)

	case abi.StringTy:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return fmt.Sprint(value), nil

	case abi.BytesTy:
		return toBytes(value)

	case abi.FixedBytesTy:
		b, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		array := reflect.New(t.GetType()).Elem()
		reflect.Copy(array, reflect.ValueOf(b))
		return array.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list, got %T", value)
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			if len(items) != t.Size {
				return nil, fmt.Errorf("expected %d items, got %d", t.Size, len(items))
			}
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			v, err := convert(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil
	}

	return nil, fmt.Errorf("unsupported type %s", t)
}

func toAddress(value any) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case string:
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("'%s' is not a hex address", v)
		}
		return common.HexToAddress(v), nil
	}
	return common.Address{}, fmt.Errorf("expected address, got %T", value)
}

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case float64:
		f := big.NewFloat(v)
		if !f.IsInt() {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		n, _ := f.Int(nil)
		return n, nil
	case string:
		n, ok := new(big.Int).SetString(strings.ReplaceAll(strings.TrimSpace(v), "_", ""), 0)
		if !ok {
			return nil, fmt.Errorf("'%s' is not an integer", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", value)
}

func checkRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return fmt.Errorf("%s out of range for uint%d", n, t.Size)
		}
		return nil
	}

	magnitude := n
	if n.Sign() < 0 {
		// Two's complement: the lower bound is -2^(size-1).
		magnitude = new(big.Int).Add(n, big.NewInt(1))
		magnitude.Neg(magnitude)
	}
	if magnitude.BitLen() > t.Size-1 {
		return fmt.Errorf("%s out of range for int%d", n, t.Size)
	}
	return nil
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not 0x-prefixed hex: %w", v, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected hex bytes, got %T", value)
}
