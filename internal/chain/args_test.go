package chain

import (
	"math/big"
	"testing"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func arguments(t *testing.T, types ...string) abi.Arguments {
	t.Helper()

	args := make(abi.Arguments, 0, len(types))
	for _, typ := range types {
		parsed, err := abi.NewType(typ, "", nil)
		require.NoError(t, err)
		args = append(args, abi.Argument{Type: parsed})
	}
	return args
}

func TestConvertArgs(t *testing.T) {
	owner := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	tests := []struct {
		name  string
		types []string
		in    []any
		want  []any
	}{
		{
			name:  "address from resolved reference",
			types: []string{"address"},
			in:    []any{owner},
			want:  []any{common.HexToAddress(owner)},
		},
		{
			name:  "small integers use native types",
			types: []string{"uint8", "int64", "uint32"},
			in:    []any{255, -5, uint64(7)},
			want:  []any{uint8(255), int64(-5), uint32(7)},
		},
		{
			name:  "uint256 from decimal and hex strings",
			types: []string{"uint256", "uint256"},
			in:    []any{"1_000_000_000_000_000_000_000", "0xff"},
			want: []any{
				new(big.Int).Mul(big.NewInt(1_000_000_000_000), big.NewInt(1_000_000_000)),
				big.NewInt(255),
			},
		},
		{
			name:  "signed lower bound",
			types: []string{"int8"},
			in:    []any{-128},
			want:  []any{int8(-128)},
		},
		{
			name:  "bool string and bytes",
			types: []string{"bool", "string", "bytes", "bytes4"},
			in:    []any{"true", "Secura", "0xdeadbeef", "0x01020304"},
			want:  []any{true, "Secura", []byte{0xde, 0xad, 0xbe, 0xef}, [4]byte{1, 2, 3, 4}},
		},
		{
			name:  "dynamic list",
			types: []string{"address[]"},
			in:    []any{[]any{owner, owner}},
			want:  []any{[]common.Address{common.HexToAddress(owner), common.HexToAddress(owner)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertArgs(arguments(t, tt.types...), tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			_, err = arguments(t, tt.types...).Pack(got...)
			require.NoError(t, err)
		})
	}
}

func TestConvertArgsErrors(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		in    []any
	}{
		{name: "arity", types: []string{"address"}, in: nil},
		{name: "malformed address", types: []string{"address"}, in: []any{"0x1234"}},
		{name: "uint overflow", types: []string{"uint8"}, in: []any{256}},
		{name: "negative uint", types: []string{"uint256"}, in: []any{-1}},
		{name: "int overflow", types: []string{"int8"}, in: []any{-129}},
		{name: "fractional", types: []string{"uint256"}, in: []any{1.5}},
		{name: "bytes without prefix", types: []string{"bytes"}, in: []any{"deadbeef"}},
		{name: "fixed bytes length", types: []string{"bytes32"}, in: []any{"0x01"}},
		{name: "bool", types: []string{"bool"}, in: []any{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ConvertArgs(arguments(t, tt.types...), tt.in)
			require.ErrorIs(t, err, ErrInvalidArgument)
			require.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}
