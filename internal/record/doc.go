// Package record provides the value model for entities held by the store.
//
// A Record is a JSON object. Records cross the storage boundary as exact
// canonical JSON (sorted keys, no HTML escaping, strings byte for byte) so
// that identical values always produce identical bytes. Marshal adds NFC
// normalization for fingerprints and snapshots, where canonically
// equivalent text must hash alike. Numbers decode as json.Number to avoid
// float64 precision loss for large integers.
//
// Keys are the values of a collection's key field. Only strings and
// numbers are valid keys; EncodeKey maps them to a canonical text form
// where "12" (string) and 12 (number) never collide, while 12, 12.0 and
// int64(12) address the same entity.
//
// record imports nothing internal.
package record
