package layer

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestRegisterStableBits(t *testing.T) {
	// Re-registering a built-in returns the same bit.
	m, err := Register("material")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "material bit", m, Material)

	// New registrations never reuse earlier bits.
	a := MustRegister("test-layer-a")
	b := MustRegister("test-layer-b")
	if a == b {
		t.Errorf("distinct layers got the same bit: %v", a)
	}
	if a&(Material|Umbra|Astral|Shadowlands) != 0 {
		t.Errorf("new layer reused a built-in bit: %v", a)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]struct {
		names  []string
		expect Mask
		expErr bool
	}{
		"single":        {names: []string{"material"}, expect: Material},
		"multiple":      {names: []string{"material", "umbra"}, expect: Material | Umbra},
		"case folding":  {names: []string{"MATERIAL"}, expect: Material},
		"unknown layer": {names: []string{"penumbra-of-nowhere"}, expErr: true},
		"empty":         {names: nil, expect: 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := Parse(tt.names)
			if tt.expErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "mask", m, tt.expect)
		})
	}
}

func TestPredicates(t *testing.T) {
	tests := map[string]struct {
		see, layers Mask
		visible     bool
	}{
		"same layer":        {Material, Material, true},
		"disjoint":          {Material, Umbra, false},
		"overlap":           {Material | Umbra, Umbra, true},
		"entity layerless":  {Material, 0, false},
		"viewer sees wider": {Material | Astral, Material | Umbra, true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, "visible", Visible(tt.see, tt.layers), tt.visible)
			// Touchable and ExitUsable share the intersection semantics.
			testutil.AssertEqual(t, "touchable", Touchable(tt.see, tt.layers), tt.visible)
			testutil.AssertEqual(t, "exit usable", ExitUsable(tt.layers, tt.see), Visible(tt.see, tt.layers))
		})
	}
}

func TestMaskHelpers(t *testing.T) {
	testutil.AssertEqual(t, "count", (Material | Umbra).Count(), 2)
	testutil.AssertEqual(t, "single", Material.Single(), true)
	testutil.AssertEqual(t, "not single", (Material | Umbra).Single(), false)
	testutil.AssertEqual(t, "zero not single", Mask(0).Single(), false)
}

func TestAttribution(t *testing.T) {
	// Registration order is the render priority: material outranks umbra.
	name, ok := (Umbra | Material).Attribution()
	if !ok {
		t.Fatal("expected an attribution")
	}
	testutil.AssertEqual(t, "attribution", name, "material")

	_, ok = Mask(0).Attribution()
	testutil.AssertEqual(t, "empty attribution", ok, false)
}
