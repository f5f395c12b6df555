/*
Package store maps session codes onto records in a shared KeyValueChannel.

Codes are normalized (trimmed, upper-cased) before every key derivation, so user input is
case and whitespace insensitive. Missing, malformed or mismatched records all read as "no
session"; they are logged, never returned as errors.

By default a save simply overwrites the record (last writer wins). WithOptimisticConcurrency
turns a save whose base version is stale into domain.ErrConflict, and WithLocker guards that
compare-and-save across processes with a DistributedLocker. Within one process saves to the
same code are always serialized.
*/
package store
