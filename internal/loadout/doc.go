// Package loadout equips a complete build: a subclass with its abilities,
// up to three weapons, up to five armor pieces, and armor mods.
//
// A run resolves every component first and refuses to touch anything when
// one is missing. It then equips in dependency order (subclass, subclass
// sockets, gear, mods) and keeps going past individual failures, because an
// equip is a series of independent remote calls rather than a transaction.
// The Result lists what was equipped, what failed, and what was missing.
package loadout
