// Package detector runs one poll cycle: fetch the primary page, compare its
// fingerprint to the stored one and, when it differs, compose a bilingual
// message, deliver it and persist the new fingerprint.
//
// A cycle never returns a bare error. It returns a Result whose Outcome
// tells the caller whether anything happened and whether a failure is the
// recoverable kind (aborted) or unexpected (failed).
package detector
