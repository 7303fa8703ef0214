package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/demi-app/demi/backend/internal/companion"
)

// SeedUser is a demo account provisioned at startup.
type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Seed bundles the startup data: accounts plus an optional companion
// profile override.
type Seed struct {
	Companion companion.Profile `yaml:"companion"`
	Users     []SeedUser        `yaml:"users"`
}

// DefaultSeed provides a single demo account so a fresh checkout is usable
// without any seed file.
func DefaultSeed() Seed {
	return Seed{
		Companion: companion.Default(),
		Users: []SeedUser{
			{Email: "demo@demi.app", Password: "demi-demo"},
		},
	}
}

// LoadSeed reads the seed file at path, overlaying it on the defaults.
// An empty path returns the defaults unchanged.
func LoadSeed(path string) (Seed, error) {
	seed := DefaultSeed()
	if path == "" {
		return seed, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}

	var fileSeed Seed
	if err := yaml.Unmarshal(raw, &fileSeed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	seed.Companion = companion.Default().Merge(fileSeed.Companion)
	if len(fileSeed.Users) > 0 {
		seed.Users = fileSeed.Users
	}
	return seed, nil
}
