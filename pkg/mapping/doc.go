// Package mapping implements mapping resolution: turning the canonical
// attributes of an entity into the native attribute set a connector
// accepts, according to the per-resource mapping configuration.
//
// The pipeline is Resolver (raw values per mapping item) -> transformer
// chain (ordered, named value transforms) -> Assembler (deduplicated
// native attribute set plus the resolved connObjectKey and __NAME__ link).
// Per-item failures never abort assembly; they are collected as
// diagnostics and the item is skipped.
package mapping
