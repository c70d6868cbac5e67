package loadout

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vaultkeeper/internal/services"
)

const (
	MaxWeapons = 3
	MaxArmor   = 5
)

// Component names one owned item. Any of the fields may identify it; an
// instance id pins one copy.
type Component struct {
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	ItemHash   uint32 `yaml:"hash,omitempty" json:"itemHash,omitempty"`
	InstanceID string `yaml:"instance,omitempty" json:"instanceId,omitempty"`
}

// Label is the name used in results and logs.
func (c Component) Label() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.InstanceID != "":
		return "#" + c.InstanceID
	default:
		return strconv.FormatUint(uint64(c.ItemHash), 10)
	}
}

func (c Component) empty() bool {
	return strings.TrimSpace(c.Name) == "" && c.ItemHash == 0 && c.InstanceID == ""
}

// Plug names a socket plug by name or hash.
type Plug struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Hash uint32 `yaml:"hash,omitempty" json:"hash,omitempty"`
}

func (p Plug) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return strconv.FormatUint(uint64(p.Hash), 10)
}

// UnmarshalYAML accepts a bare scalar as a plug name.
func (p *Plug) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if hash, err := strconv.ParseUint(node.Value, 10, 32); err == nil && node.Tag == "!!int" {
			p.Hash = uint32(hash)
			return nil
		}
		p.Name = node.Value
		return nil
	}
	type raw Plug
	return node.Decode((*raw)(p))
}

// Subclass is the subclass item plus its socket configuration.
type Subclass struct {
	Component    `yaml:",inline"`
	Super        *Plug  `yaml:"super,omitempty" json:"super,omitempty"`
	ClassAbility *Plug  `yaml:"class_ability,omitempty" json:"classAbility,omitempty"`
	Melee        *Plug  `yaml:"melee,omitempty" json:"melee,omitempty"`
	Grenade      *Plug  `yaml:"grenade,omitempty" json:"grenade,omitempty"`
	Jump         *Plug  `yaml:"jump,omitempty" json:"jump,omitempty"`
	Aspects      []Plug `yaml:"aspects,omitempty" json:"aspects,omitempty"`
	Fragments    []Plug `yaml:"fragments,omitempty" json:"fragments,omitempty"`
}

// ArmorPiece is one armor item and the mods it should carry.
type ArmorPiece struct {
	Component `yaml:",inline"`
	Mods      []Plug `yaml:"mods,omitempty" json:"mods,omitempty"`
}

// Definition is a loadout as written in a YAML file.
type Definition struct {
	Name     string       `yaml:"name" json:"name"`
	Subclass *Subclass    `yaml:"subclass,omitempty" json:"subclass,omitempty"`
	Weapons  []Component  `yaml:"weapons,omitempty" json:"weapons,omitempty"`
	Armor    []ArmorPiece `yaml:"armor,omitempty" json:"armor,omitempty"`
}

// Parse decodes and validates one YAML loadout. Unknown keys are rejected so
// typos do not silently drop components.
func Parse(r io.Reader) (Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return Definition{}, services.Wrap(services.ErrValidation, "loadout", "parse", "empty loadout", nil)
		}
		return Definition{}, services.Wrap(services.ErrValidation, "loadout", "parse", "decode yaml", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(data []byte) (Definition, error) {
	return Parse(bytes.NewReader(data))
}

// Load reads a loadout file.
func Load(path string) (Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, fmt.Errorf("open loadout: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate checks structure only; ownership is checked at resolve time.
func (d Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if d.Subclass == nil && len(d.Weapons) == 0 && len(d.Armor) == 0 {
		problems = append(problems, "loadout has no components")
	}
	if len(d.Weapons) > MaxWeapons {
		problems = append(problems, fmt.Sprintf("%d weapons exceeds %d", len(d.Weapons), MaxWeapons))
	}
	if len(d.Armor) > MaxArmor {
		problems = append(problems, fmt.Sprintf("%d armor pieces exceeds %d", len(d.Armor), MaxArmor))
	}
	if d.Subclass != nil && d.Subclass.empty() {
		problems = append(problems, "subclass needs an identifier")
	}
	for i, w := range d.Weapons {
		if w.empty() {
			problems = append(problems, fmt.Sprintf("weapon %d needs an identifier", i+1))
		}
	}
	for i, a := range d.Armor {
		if a.empty() {
			problems = append(problems, fmt.Sprintf("armor %d needs an identifier", i+1))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "loadout", "validate", strings.Join(problems, "; "), nil)
	}
	return nil
}
