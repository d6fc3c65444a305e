// Package types defines the storage contracts, target shapes, configuration
// and standard errors shared by the fixtures packages.
//
// A loader persists dataset rows into targets. A target is either a *Table
// (rows written as column maps) or a *MappedClass (rows written as GORM
// models). Classify tells the two apart; anything else is rejected with
// ErrUnsupportedTarget.
package types
