// Package journal records every engine operation in SQLite.
//
// Each transfer, socket change, lock toggle, loadout run, and forced resync
// gets one row created pending and later marked succeeded or failed. Failed
// rows keep the classified error kind so `vaultkeeper history` can show why
// an operation failed without digging through logs.
//
// The journal is a record, not a work queue: nothing is replayed from it. Rows
// still pending when the daemon starts were interrupted and are closed out by
// ResetPending.
package journal
