package testsupport

import "vaultkeeper/internal/manifest"

// Definition hashes used by the fixture manifest.
const (
	HashAutoRifle   uint32 = 1001
	HashHandCannon  uint32 = 1002
	HashSniper      uint32 = 1003
	HashBoundRelic  uint32 = 1099
	HashHelmet      uint32 = 2001
	HashGauntlets   uint32 = 2002
	HashChest       uint32 = 2003
	HashLegs        uint32 = 2004
	HashClassItem   uint32 = 2005
	HashVoidClass   uint32 = 3001
	HashNovaBomb    uint32 = 4001
	HashBarricade   uint32 = 4002
	HashBlink       uint32 = 4003
	HashPocketSing  uint32 = 4004
	HashVortex      uint32 = 4005
	HashChaosAccel  uint32 = 4010
	HashFeedFrenzy  uint32 = 4011
	HashEchoStarve  uint32 = 4020
	HashEchoPersist uint32 = 4021
	HashEchoUndermn uint32 = 4022
	HashEchoReprisl uint32 = 4023
	HashEchoExpuls  uint32 = 4024
	HashRecoveryMod uint32 = 4101
	HashResistMod   uint32 = 4102
	HashReserveMod  uint32 = 4103
	HashRampage     uint32 = 5001
	HashKillClip    uint32 = 5002
	HashGlimmer     uint32 = 6001
)

// Plug set hashes used by the fixture manifest.
const (
	PlugSetArmorMods   uint32 = 9001
	PlugSetSupers      uint32 = 9100
	PlugSetClassAbil   uint32 = 9101
	PlugSetJumps       uint32 = 9102
	PlugSetMelees      uint32 = 9103
	PlugSetGrenades    uint32 = 9104
	PlugSetAspects     uint32 = 9105
	PlugSetFragments   uint32 = 9106
	PlugSetWeaponPerks uint32 = 9200
)

// Socket indexes on fixture definitions.
const (
	WeaponPerkSocket = 3
	ArmorModFirst    = 2 // armor mod sockets are 2, 3, 4
	SubclassSuper    = 0
	SubclassClass    = 1
	SubclassJump     = 2
	SubclassMelee    = 3
	SubclassGrenade  = 4
	SubclassAspect   = 5 // aspects 5, 6
	SubclassFragment = 7 // fragments 7 through 11
)

// ManifestFixtures returns the fixture definitions and plug sets.
func ManifestFixtures() ([]manifest.Definition, []manifest.PlugSet) {
	weaponSockets := []manifest.SocketEntry{
		{Index: WeaponPerkSocket, Category: manifest.SocketWeaponPerk, PlugSetHash: PlugSetWeaponPerks},
	}
	armorSockets := []manifest.SocketEntry{
		{Index: 0, Category: manifest.SocketOther},
		{Index: 2, Category: manifest.SocketArmorMod, PlugSetHash: PlugSetArmorMods},
		{Index: 3, Category: manifest.SocketArmorMod, PlugSetHash: PlugSetArmorMods},
		{Index: 4, Category: manifest.SocketArmorMod, PlugSetHash: PlugSetArmorMods},
	}
	subclassSockets := []manifest.SocketEntry{
		{Index: SubclassSuper, Category: manifest.SocketSuper, PlugSetHash: PlugSetSupers},
		{Index: SubclassClass, Category: manifest.SocketClassAbility, PlugSetHash: PlugSetClassAbil},
		{Index: SubclassJump, Category: manifest.SocketJump, PlugSetHash: PlugSetJumps},
		{Index: SubclassMelee, Category: manifest.SocketMelee, PlugSetHash: PlugSetMelees},
		{Index: SubclassGrenade, Category: manifest.SocketGrenade, PlugSetHash: PlugSetGrenades},
		{Index: SubclassAspect, Category: manifest.SocketAspect, PlugSetHash: PlugSetAspects},
		{Index: SubclassAspect + 1, Category: manifest.SocketAspect, PlugSetHash: PlugSetAspects},
	}
	for i := range 5 {
		subclassSockets = append(subclassSockets, manifest.SocketEntry{
			Index: SubclassFragment + i, Category: manifest.SocketFragment, PlugSetHash: PlugSetFragments,
		})
	}

	gear := func(hash uint32, name string, typ manifest.ItemType, sockets []manifest.SocketEntry) manifest.Definition {
		return manifest.Definition{Hash: hash, Name: name, ItemType: typ, Equippable: true, Sockets: sockets}
	}
	plug := func(hash uint32, name, category string) manifest.Definition {
		return manifest.Definition{Hash: hash, Name: name, ItemType: manifest.TypeMod, PlugCategory: category}
	}

	defs := []manifest.Definition{
		gear(HashAutoRifle, "Horror's Least", manifest.TypeWeapon, weaponSockets),
		gear(HashHandCannon, "Round Robin", manifest.TypeWeapon, weaponSockets),
		gear(HashSniper, "Succession", manifest.TypeWeapon, weaponSockets),
		{Hash: HashBoundRelic, Name: "Bound Relic", ItemType: manifest.TypeWeapon, Equippable: true, NonTransferrable: true},
		gear(HashHelmet, "Nezarec's Sin", manifest.TypeArmor, armorSockets),
		gear(HashGauntlets, "Swordmaster's Gloves", manifest.TypeArmor, armorSockets),
		gear(HashChest, "Iron Truage Vestments", manifest.TypeArmor, armorSockets),
		gear(HashLegs, "Pathfinder Boots", manifest.TypeArmor, armorSockets),
		gear(HashClassItem, "Bond of the Sky", manifest.TypeArmor, armorSockets),
		gear(HashVoidClass, "Voidwalker", manifest.TypeSubclass, subclassSockets),
		plug(HashNovaBomb, "Nova Bomb: Vortex", "super"),
		plug(HashBarricade, "Healing Rift", "class_ability"),
		plug(HashBlink, "Blink", "jump"),
		plug(HashPocketSing, "Pocket Singularity", "melee"),
		plug(HashVortex, "Vortex Grenade", "grenade"),
		{Hash: HashChaosAccel, Name: "Chaos Accelerant", ItemType: manifest.TypeMod, PlugCategory: "aspect", FragmentCapacity: 2},
		{Hash: HashFeedFrenzy, Name: "Feed the Void", ItemType: manifest.TypeMod, PlugCategory: "aspect", FragmentCapacity: 2},
		plug(HashEchoStarve, "Echo of Starvation", "fragment"),
		plug(HashEchoPersist, "Echo of Persistence", "fragment"),
		plug(HashEchoUndermn, "Echo of Undermining", "fragment"),
		plug(HashEchoReprisl, "Echo of Reprisal", "fragment"),
		plug(HashEchoExpuls, "Echo of Expulsion", "fragment"),
		plug(HashRecoveryMod, "Recovery Mod", "armor_mod"),
		plug(HashResistMod, "Concussive Dampener", "armor_mod"),
		plug(HashReserveMod, "Kinetic Reserves", "armor_mod"),
		plug(HashRampage, "Rampage", "weapon_perk"),
		plug(HashKillClip, "Kill Clip", "weapon_perk"),
		{Hash: HashGlimmer, Name: "Glimmer", ItemType: manifest.TypeOther},
	}
	plugSets := []manifest.PlugSet{
		{Hash: PlugSetArmorMods, Plugs: []uint32{HashRecoveryMod, HashResistMod, HashReserveMod}},
		{Hash: PlugSetSupers, Plugs: []uint32{HashNovaBomb}},
		{Hash: PlugSetClassAbil, Plugs: []uint32{HashBarricade}},
		{Hash: PlugSetJumps, Plugs: []uint32{HashBlink}},
		{Hash: PlugSetMelees, Plugs: []uint32{HashPocketSing}},
		{Hash: PlugSetGrenades, Plugs: []uint32{HashVortex}},
		{Hash: PlugSetAspects, Plugs: []uint32{HashChaosAccel, HashFeedFrenzy}},
		{Hash: PlugSetFragments, Plugs: []uint32{HashEchoStarve, HashEchoPersist, HashEchoUndermn, HashEchoReprisl, HashEchoExpuls}},
		{Hash: PlugSetWeaponPerks, Plugs: []uint32{HashRampage, HashKillClip}},
	}
	return defs, plugSets
}

// Manifest returns the fixture definitions as an in-memory lookup.
func Manifest() *manifest.Static {
	return manifest.NewStatic(ManifestFixtures())
}
