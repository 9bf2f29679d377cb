// Package signer turns a credential reference from a network profile into a
// transaction signer. Key material never leaves this package.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/compose-network/deployctl/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	schemeEnv      = "env"
	schemeFile     = "file"
	schemeKeystore = "keystore"
)

var ErrInvalidCredential = fmt.Errorf("invalid credential: %w", domain.ErrConfiguration)

type (
	Signer interface {
		Address() common.Address
		TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error)
	}

	// Resolver resolves credential references of the form env:NAME,
	// file:PATH or keystore:PATH#PASSWORD_ENV.
	Resolver struct {
		getenv   func(string) string
		readFile func(string) ([]byte, error)
	}

	keySigner struct {
		key     *ecdsa.PrivateKey
		address common.Address
	}
)

func NewResolver() *Resolver {
	return &Resolver{
		getenv:   os.Getenv,
		readFile: os.ReadFile,
	}
}

func (r *Resolver) Resolve(ref string) (Signer, error) {
	scheme, target, ok := strings.Cut(ref, ":")
	if !ok || target == "" {
		return nil, fmt.Errorf("%w: expected scheme:target, got '%s'", ErrInvalidCredential, redact(ref))
	}

	switch scheme {
	case schemeEnv:
		value := r.getenv(target)
		if value == "" {
			return nil, fmt.Errorf("%w: environment variable %s is empty", ErrInvalidCredential, target)
		}
		return fromHex(value, ref)

	case schemeFile:
		data, err := r.readFile(target)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read key file: %w", ErrInvalidCredential, err)
		}
		return fromHex(string(data), ref)

	case schemeKeystore:
		path, passwordEnv, _ := strings.Cut(target, "#")
		data, err := r.readFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read keystore: %w", ErrInvalidCredential, err)
		}
		password := ""
		if passwordEnv != "" {
			password = r.getenv(passwordEnv)
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt keystore '%s': %w", ErrInvalidCredential, path, err)
		}
		return newKeySigner(key.PrivateKey), nil

	default:
		return nil, fmt.Errorf("%w: unsupported scheme '%s'", ErrInvalidCredential, scheme)
	}
}

func fromHex(value, ref string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil {
		// The parse error may echo key bytes, so it is not wrapped.
		return nil, fmt.Errorf("%w: '%s' does not hold a valid hex private key", ErrInvalidCredential, redact(ref))
	}
	return newKeySigner(key), nil
}

func newKeySigner(key *ecdsa.PrivateKey) *keySigner {
	return &keySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *keySigner) Address() common.Address {
	return s.address
}

func (s *keySigner) TransactOpts(ctx context.Context, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// redact keeps only the scheme of a reference that is not well formed, in
// case a raw key was pasted where a reference belongs.
func redact(ref string) string {
	scheme, _, ok := strings.Cut(ref, ":")
	if !ok {
		return "<redacted>"
	}
	return scheme + ":<redacted>"
}

// Secret resolves a non-key secret such as an explorer API key. env: and
// file: references are dereferenced; anything else is taken literally.
func (r *Resolver) Secret(ref string) (string, error) {
	scheme, target, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}

	switch scheme {
	case schemeEnv:
		value := r.getenv(target)
		if value == "" {
			return "", fmt.Errorf("%w: environment variable %s is empty", ErrInvalidCredential, target)
		}
		return value, nil
	case schemeFile:
		data, err := r.readFile(target)
		if err != nil {
			return "", fmt.Errorf("%w: failed to read secret file: %w", ErrInvalidCredential, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return ref, nil
	}
}
