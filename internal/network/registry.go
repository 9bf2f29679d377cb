package network

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/compose-network/deployctl/configs"
	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/logger"
)

var (
	ErrUnknownNetwork        = fmt.Errorf("unknown network: %w", domain.ErrConfiguration)
	ErrInvalidNetworkProfile = fmt.Errorf("invalid network profile: %w", domain.ErrConfiguration)
)

type (
	// Profile describes one deployment target. Credential and
	// VerificationSettings.APIKey are references, never secrets.
	Profile struct {
		Name         string
		RPCURL       string
		ChainID      int64
		Credential   string
		Verification *VerificationSettings
	}

	VerificationSettings struct {
		APIURL     string
		BrowserURL string
		APIKey     string
	}

	// Registry holds the profiles loaded at start up. It is read-only afterwards.
	Registry struct {
		profiles map[string]Profile
		logger   *slog.Logger
	}
)

// NewRegistry validates every configured network and fails fast on the first load.
func NewRegistry(networks map[configs.NetworkName]configs.Network) (*Registry, error) {
	profiles := make(map[string]Profile, len(networks))

	var errs []error
	for name, network := range networks {
		if err := network.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w '%s': %w", ErrInvalidNetworkProfile, name, err))
			continue
		}

		profile := Profile{
			Name:       string(name),
			RPCURL:     network.RPCURL,
			ChainID:    network.ChainID,
			Credential: network.Credential,
		}
		if network.Verification.APIURL != "" {
			profile.Verification = &VerificationSettings{
				APIURL:     network.Verification.APIURL,
				BrowserURL: network.Verification.BrowserURL,
				APIKey:     network.Verification.APIKey,
			}
		}
		profiles[string(name)] = profile
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	r := &Registry{
		profiles: profiles,
		logger:   logger.Named("network_registry"),
	}
	r.logger.With("networks", r.Names()).Debug("network registry loaded")

	return r, nil
}

// Resolve returns a copy of the named profile.
func (r *Registry) Resolve(name string) (Profile, error) {
	profile, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w '%s' (known: %v)", ErrUnknownNetwork, name, r.Names())
	}

	if profile.Verification != nil {
		settings := *profile.Verification
		profile.Verification = &settings
	}

	return profile, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.profiles[name]
	return ok
}
