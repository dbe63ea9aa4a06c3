// Package layer implements the bitmask algebra over reality layers.
// Every entity exists in a set of layers; every viewer carries LOC, SEE
// and TOUCH masks over the same bit space. All perception and exit
// gating decisions reduce to the predicates in this package.
package layer

import (
	"fmt"
	"math/bits"
	"strings"
	"sync"
)

// Mask is a set of layers encoded as bits. Bit positions are assigned by
// the registry in registration order and are never reused.
type Mask uint64

const maxLayers = 64

// registry maps bit positions to layer names. Registration order doubles
// as the render priority: the earliest registered layer wins when a
// multi-layer entity must be attributed to a single layer.
var registry = struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]int
}{
	byName: make(map[string]int),
}

// Built-in layers. The enumeration is append-only: new layers may be
// registered after these, existing bits are stable forever.
var (
	Material    = MustRegister("material")
	Umbra       = MustRegister("umbra")
	Astral      = MustRegister("astral")
	Shadowlands = MustRegister("shadowlands")
)

// Register assigns the next free bit to name. Registering an existing
// name returns its mask unchanged, so seed files may safely re-declare
// built-ins.
func Register(name string) (Mask, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("layer name cannot be empty")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if idx, ok := registry.byName[name]; ok {
		return 1 << idx, nil
	}
	if len(registry.names) >= maxLayers {
		return 0, fmt.Errorf("layer registry full (%d layers)", maxLayers)
	}

	idx := len(registry.names)
	registry.names = append(registry.names, name)
	registry.byName[name] = idx
	return 1 << idx, nil
}

// MustRegister is Register for package-level declarations.
func MustRegister(name string) Mask {
	m, err := Register(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse builds a mask from layer names. Unknown names are an error, not
// an implicit registration: seed data must not invent layers by typo.
func Parse(names []string) (Mask, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var m Mask
	for _, n := range names {
		idx, ok := registry.byName[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown layer %q", n)
		}
		m |= 1 << idx
	}
	return m, nil
}

// Visible reports whether an entity occupying layers can be seen by a
// viewer with the given SEE mask.
func Visible(see, layers Mask) bool {
	return see&layers != 0
}

// Touchable reports whether an entity occupying layers can be affected by
// a viewer with the given TOUCH mask.
func Touchable(touch, layers Mask) bool {
	return touch&layers != 0
}

// ExitUsable reports whether an exit whose gating mask is allowed can be
// traversed by a viewer whose travel layer is loc.
func ExitUsable(allowed, loc Mask) bool {
	return allowed&loc != 0
}

// Count returns the number of layers in the mask.
func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Single reports whether the mask holds exactly one layer. A viewer's LOC
// must always be Single.
func (m Mask) Single() bool {
	return m.Count() == 1
}

// Has reports whether m and other share at least one layer.
func (m Mask) Has(other Mask) bool {
	return m&other != 0
}

// Names returns the layer names in the mask, in render priority order.
func (m Mask) Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	var out []string
	for idx, name := range registry.names {
		if m&(1<<idx) != 0 {
			out = append(out, name)
		}
	}
	return out
}

// Attribution returns the name of the highest-priority layer in the mask.
// When an entity is visible through several layers at once it is reported
// once, attributed to this layer.
func (m Mask) Attribution() (string, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for idx, name := range registry.names {
		if m&(1<<idx) != 0 {
			return name, true
		}
	}
	return "", false
}

func (m Mask) String() string {
	names := m.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
