package remote

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"vaultkeeper/internal/inventory"
)

//go:embed profile.schema.json
var profileSchemaJSON string

var (
	profileSchemaOnce sync.Once
	profileSchema     *jsonschema.Schema
	profileSchemaErr  error
)

func compiledProfileSchema() (*jsonschema.Schema, error) {
	profileSchemaOnce.Do(func() {
		profileSchema, profileSchemaErr = jsonschema.CompileString("profile.schema.json", profileSchemaJSON)
	})
	return profileSchema, profileSchemaErr
}

// Profile components requested from the authority.
const profileComponents = "100,102,200,201,205,300,304,305"

type wireItem struct {
	ItemHash       uint32 `json:"itemHash"`
	ItemInstanceID string `json:"itemInstanceId"`
	Quantity       int    `json:"quantity"`
	BucketHash     uint32 `json:"bucketHash"`
	TransferStatus uint8  `json:"transferStatus"`
	Lockable       bool   `json:"lockable"`
	BindStatus     uint8  `json:"bindStatus"`
	State          uint32 `json:"state"`
}

type wireItemList struct {
	Items []wireItem `json:"items"`
}

type wireCharacter struct {
	CharacterID string `json:"characterId"`
	ClassType   int    `json:"classType"`
	Light       int    `json:"light"`
}

type wireInstance struct {
	DamageType  uint8 `json:"damageType"`
	PrimaryStat *struct {
		Value int `json:"value"`
	} `json:"primaryStat"`
	Energy *struct {
		EnergyCapacity int `json:"energyCapacity"`
	} `json:"energy"`
}

type wireSocket struct {
	SocketIndex *int   `json:"socketIndex"`
	PlugHash    uint32 `json:"plugHash"`
	IsEnabled   bool   `json:"isEnabled"`
}

type wireProfile struct {
	ResponseMintedTimestamp string `json:"responseMintedTimestamp"`
	Characters              struct {
		Data map[string]wireCharacter `json:"data"`
	} `json:"characters"`
	ProfileInventory struct {
		Data wireItemList `json:"data"`
	} `json:"profileInventory"`
	CharacterInventories struct {
		Data map[string]wireItemList `json:"data"`
	} `json:"characterInventories"`
	CharacterEquipment struct {
		Data map[string]wireItemList `json:"data"`
	} `json:"characterEquipment"`
	ItemComponents struct {
		Instances struct {
			Data map[string]wireInstance `json:"data"`
		} `json:"instances"`
		Sockets struct {
			Data map[string]struct {
				Sockets []wireSocket `json:"sockets"`
			} `json:"data"`
		} `json:"sockets"`
		Stats struct {
			Data map[string]struct {
				Stats map[string]struct {
					Value int `json:"value"`
				} `json:"stats"`
			} `json:"data"`
		} `json:"stats"`
	} `json:"itemComponents"`
}

// DecodeProfile validates a profile payload (the envelope's Response) and
// converts it into a normalized, validated snapshot. Anything malformed is
// rejected as a whole with a KindMalformed error.
func DecodeProfile(raw []byte) (inventory.Snapshot, error) {
	schema, err := compiledProfileSchema()
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("compile profile schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return inventory.Snapshot{}, malformed(err)
	}
	if err := schema.Validate(doc); err != nil {
		return inventory.Snapshot{}, malformed(err)
	}

	var wire wireProfile
	if err := json.Unmarshal(raw, &wire); err != nil {
		return inventory.Snapshot{}, malformed(err)
	}
	ts, err := time.Parse(time.RFC3339Nano, wire.ResponseMintedTimestamp)
	if err != nil {
		return inventory.Snapshot{}, malformed(fmt.Errorf("responseMintedTimestamp: %w", err))
	}

	snap := inventory.Snapshot{
		Timestamp: ts,
		Items:     make(map[inventory.Location][]inventory.Item),
		Instances: make(map[string]inventory.ItemInstance),
	}
	for _, c := range wire.Characters.Data {
		snap.Characters = append(snap.Characters, inventory.Character(c))
	}
	add := func(loc inventory.Location, list wireItemList) {
		for _, w := range list.Items {
			snap.Items[loc] = append(snap.Items[loc], convertItem(w, loc))
			if w.ItemInstanceID != "" {
				snap.Instances[w.ItemInstanceID] = buildInstance(w.ItemInstanceID, &wire)
			}
		}
	}
	add(inventory.Vault(), wire.ProfileInventory.Data)
	for id, list := range wire.CharacterInventories.Data {
		add(inventory.Inventory(id), list)
	}
	for id, list := range wire.CharacterEquipment.Data {
		add(inventory.Equipped(id), list)
	}

	snap = snap.Normalize()
	if err := snap.Validate(); err != nil {
		return inventory.Snapshot{}, malformed(err)
	}
	return snap, nil
}

func convertItem(w wireItem, loc inventory.Location) inventory.Item {
	return inventory.Item{
		ItemHash:       w.ItemHash,
		InstanceID:     w.ItemInstanceID,
		Quantity:       w.Quantity,
		Location:       loc,
		BucketHash:     w.BucketHash,
		TransferStatus: inventory.TransferStatus(w.TransferStatus),
		Lockable:       w.Lockable,
		BindStatus:     inventory.BindStatus(w.BindStatus),
		State:          inventory.ItemState(w.State),
	}
}

// buildInstance gathers an instance's components. Sockets without an
// explicit index take their array position, which is the stable index the
// authority uses for that definition.
func buildInstance(id string, wire *wireProfile) inventory.ItemInstance {
	inst := inventory.ItemInstance{InstanceID: id}
	if data, ok := wire.ItemComponents.Instances.Data[id]; ok {
		inst.DamageType = inventory.DamageType(data.DamageType)
		if data.PrimaryStat != nil {
			inst.Power = data.PrimaryStat.Value
		}
		if data.Energy != nil {
			inst.EnergyCapacity = data.Energy.EnergyCapacity
		}
	}
	if data, ok := wire.ItemComponents.Sockets.Data[id]; ok {
		for pos, s := range data.Sockets {
			index := pos
			if s.SocketIndex != nil {
				index = *s.SocketIndex
			}
			inst.Sockets = append(inst.Sockets, inventory.Socket{Index: index, PlugHash: s.PlugHash, Enabled: s.IsEnabled})
		}
	}
	if data, ok := wire.ItemComponents.Stats.Data[id]; ok && len(data.Stats) > 0 {
		inst.Stats = make(map[uint32]int, len(data.Stats))
		for key, stat := range data.Stats {
			hash, err := strconv.ParseUint(key, 10, 32)
			if err != nil {
				continue
			}
			inst.Stats[uint32(hash)] = stat.Value
		}
	}
	return inst
}

func malformed(err error) error {
	return &Error{Op: "decode profile", Kind: KindMalformed, Err: fmt.Errorf("%w: %w", inventory.ErrInvalidSnapshot, err)}
}
