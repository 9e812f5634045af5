// Package vignette reads vignette documents from YAML or JSON.
//
// Documents are checked against an embedded JSON Schema, decoded onto the
// domain types and then validated structurally, so authoring mistakes are
// reported at load time with every problem listed.
package vignette
