// Package page turns a watched web page into a comparable snapshot:
// fetch the markup, extract the visible text, and fingerprint it.
package page
