package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// LocationKind enumerates the storage locations an item can occupy.
type LocationKind uint8

const (
	KindUnknown LocationKind = iota
	KindVault
	KindInventory
	KindEquipped
)

func (k LocationKind) String() string {
	switch k {
	case KindVault:
		return "vault"
	case KindInventory:
		return "inventory"
	case KindEquipped:
		return "equipped"
	default:
		return "unknown"
	}
}

// ErrInvalidLocation reports a location that is not one of the closed variants.
var ErrInvalidLocation = errors.New("invalid location")

// Location is either the shared vault or a (character, container) pair.
// The zero value is invalid and is used to mean "no location".
type Location struct {
	Kind        LocationKind
	CharacterID string
}

// Vault returns the account-wide vault location.
func Vault() Location {
	return Location{Kind: KindVault}
}

// Inventory returns the unequipped inventory of a character.
func Inventory(characterID string) Location {
	return Location{Kind: KindInventory, CharacterID: characterID}
}

// Equipped returns the equipment slots of a character.
func Equipped(characterID string) Location {
	return Location{Kind: KindEquipped, CharacterID: characterID}
}

func (l Location) IsZero() bool { return l == Location{} }

func (l Location) IsVault() bool { return l.Kind == KindVault }

// OnCharacter reports whether the location belongs to the given character.
func (l Location) OnCharacter(characterID string) bool {
	return l.Kind != KindVault && l.CharacterID == characterID
}

// Validate checks the variant invariants: the vault has no character and
// character containers always name one.
func (l Location) Validate() error {
	switch l.Kind {
	case KindVault:
		if l.CharacterID != "" {
			return fmt.Errorf("%w: vault must not name a character", ErrInvalidLocation)
		}
		return nil
	case KindInventory, KindEquipped:
		if strings.TrimSpace(l.CharacterID) == "" {
			return fmt.Errorf("%w: %s requires a character id", ErrInvalidLocation, l.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidLocation, l.Kind)
	}
}

func (l Location) String() string {
	switch l.Kind {
	case KindVault:
		return "vault"
	case KindInventory, KindEquipped:
		return l.Kind.String() + ":" + l.CharacterID
	default:
		return "unknown"
	}
}

// ParseLocation accepts the String form: "vault", "inventory:<id>", or
// "equipped:<id>".
func ParseLocation(value string) (Location, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "vault") {
		return Vault(), nil
	}
	kind, id, ok := strings.Cut(value, ":")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, value)
	}
	var loc Location
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "inventory":
		loc = Inventory(strings.TrimSpace(id))
	case "equipped":
		loc = Equipped(strings.TrimSpace(id))
	default:
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, value)
	}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// MarshalText lets locations serve as JSON object keys.
func (l Location) MarshalText() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return []byte(l.String()), nil
}

func (l *Location) UnmarshalText(text []byte) error {
	parsed, err := ParseLocation(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Less orders locations vault first, then by character, inventory before
// equipment. Used wherever deterministic iteration matters.
func (l Location) Less(other Location) bool {
	if l.Kind == KindVault || other.Kind == KindVault {
		return l.Kind == KindVault && other.Kind != KindVault
	}
	if l.CharacterID != other.CharacterID {
		return l.CharacterID < other.CharacterID
	}
	return l.Kind < other.Kind
}
