package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// BridgedAccessory is one accessory published behind a bridge (spec §2,
// "bridged accessories"), identified only by its AID here — the
// attribute database itself is outside this repo's component budget.
type BridgedAccessory struct {
	AID  uint64 `yaml:"aid"`
	Name string `yaml:"name"`
}

// Identity is hapd's accessory-identity bootstrap file: the fields a
// fresh accessory needs before its very first start() that aren't part
// of the protocol state machine itself. Grounded on the teacher's
// pkg/config/config.go YAML-backed configuration file convention.
type Identity struct {
	CategoryID uint16             `yaml:"category"`
	Name       string             `yaml:"name"`
	Bridged    []BridgedAccessory `yaml:"bridged,omitempty"`
}

// LoadIdentity reads an Identity bootstrap file from path. A missing file
// is not an error: hapd falls back to hapconfig.Config's accessory name
// and category.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Identity{}, nil
	} else if err != nil {
		return nil, err
	}
	var id Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return &id, nil
}
