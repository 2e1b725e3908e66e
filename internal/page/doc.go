// Package page owns the browser capability contract consumed by the workflow engine.
//
// Ownership boundary:
// - Driver and Control capability sets
// - row/table probe shapes and their browser-side scripts
// - wait and cookie option types
//
// Backends live in subpackages (pwdriver, roddriver, cdpdriver). Engine code only
// ever sees the Driver interface, so a fake from pagetest can stand in.
package page
