// Package autodetect implements C10: a composite BLE scan filter that
// classifies discovered advertisements and hands off to the matching
// C1 ingress driver, in priority order, falling back to a configured
// default bike when scanning turns up nothing.
package autodetect

import (
	"os"
	"regexp"

	"gymnasticon/internal/ingress"
)

// Kind identifies which C1 driver a discovered peripheral (or
// configured path) maps to.
type Kind string

const (
	KindFlywheel Kind = "flywheel"
	KindIC4      Kind = "ic4"
	KindIC5      Kind = "ic5"
	KindIC8      Kind = "ic8"
	KindKeiser   Kind = "keiser"
	KindPeloton  Kind = "peloton"
	KindBot      Kind = "bot"
)

var ic4NamePrefix = regexp.MustCompile(`(?i)^ic4`)
var ic5NamePrefix = regexp.MustCompile(`(?i)^ic5`)
var ic8NamePrefix = regexp.MustCompile(`(?i)^(ic8|bowflex)`)

// Advertisement is the subset of a BLE scan result autodetect needs to
// classify it, kept independent of the bluetooth package so matching
// logic is plain and unit-testable.
type Advertisement struct {
	LocalName        string
	Address          string
	ManufacturerData []byte
	AddressFilter    string // caller-supplied Flywheel address filter, if any
}

// matchers maps each Kind to its predicate, applied in priorityOrder.
var matchers = map[Kind]func(Advertisement) bool{
	KindFlywheel: func(a Advertisement) bool { return ingress.MatchesFlywheel(a.LocalName, a.Address, a.AddressFilter) },
	KindIC4:      func(a Advertisement) bool { return ic4NamePrefix.MatchString(a.LocalName) },
	KindIC5:      func(a Advertisement) bool { return ic5NamePrefix.MatchString(a.LocalName) },
	KindIC8:      func(a Advertisement) bool { return ic8NamePrefix.MatchString(a.LocalName) },
	KindKeiser:   func(a Advertisement) bool { return ingress.MatchesKeiser(a.LocalName, a.ManufacturerData) },
}

// priorityOrder is the dispatch order applied when more than one
// matcher would accept the same advertisement (spec.md §4.9).
var priorityOrder = []Kind{KindFlywheel, KindIC4, KindIC5, KindIC8, KindKeiser}

// Match classifies adv against the priority-ordered matcher set. ok is
// false when nothing matched.
func Match(adv Advertisement) (kind Kind, ok bool) {
	for _, k := range priorityOrder {
		if matchers[k](adv) {
			return k, true
		}
	}
	return "", false
}

// DefaultBike is the fallback classification used when an active scan
// session ends with no match (spec.md §4.9).
const DefaultBike = KindKeiser

// PelotonPathExists reports whether the configured Peloton serial
// device node is present; when true, autodetect prefers Peloton
// without scanning at all.
func PelotonPathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
