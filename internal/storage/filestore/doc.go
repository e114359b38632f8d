// Package filestore is the flat-file storage driver.
//
// Each profile is one YAML text-tree container under
// <root>/<entity-uuid>/<partition>[_<mode>].yml. Snapshots live under
// <root>/.snapshots and temporary partition assignments in a single
// <root>/.assignments.yml index. Writes go through atomic file
// replacement so a crash never leaves a half-written container.
package filestore
