// Package patch provides helpers for parsing, generating and applying unified diffs.
//
// A FileDiff holds the hunks of one file. Apply locates every hunk in a base text,
// tolerating a bounded line offset, and either produces the patched text or a
// structured *Error describing the hunk that could not be placed. Generate is the
// inverse: it compares two texts and emits a deterministic diff that Apply
// reproduces exactly.
package patch
