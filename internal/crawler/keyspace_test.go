package crawler

import (
	"reflect"
	"testing"
)

func testKeys() []SearchKey {
	return EnumerateKeys(
		[]string{"Tonberry", "Alexander"},
		[]int{19, 20, 21},
		[]string{"tribe_1", "tribe_2"},
		[]int{1, 2, 3},
	)
}

func TestEnumerateKeys_CrossProduct(t *testing.T) {
	keys := testKeys()
	if len(keys) != 2*3*2*3 {
		t.Fatalf("expected 36 keys, got %d", len(keys))
	}
	for i, k := range keys {
		if k.Index != i {
			t.Fatalf("key %d has index %d", i, k.Index)
		}
	}

	first := SearchKey{Index: 0, World: "Tonberry", ClassJobID: 19, RaceTribeID: "tribe_1", GrandCompanyID: 1}
	if keys[0] != first {
		t.Fatalf("unexpected first key: %+v", keys[0])
	}
	// grand company 是最内层维度
	if keys[1].GrandCompanyID != 2 || keys[1].RaceTribeID != "tribe_1" {
		t.Fatalf("unexpected nesting order: %+v", keys[1])
	}
	last := keys[len(keys)-1]
	if last.World != "Alexander" || last.ClassJobID != 21 || last.RaceTribeID != "tribe_2" || last.GrandCompanyID != 3 {
		t.Fatalf("unexpected last key: %+v", last)
	}
}

func TestEnumerateKeys_EmptyDimension(t *testing.T) {
	if keys := EnumerateKeys([]string{"Tonberry"}, nil, []string{"tribe_1"}, []int{1}); len(keys) != 0 {
		t.Fatalf("expected empty key space, got %d", len(keys))
	}
}

func TestShuffleKeys_IsDeterministicPermutation(t *testing.T) {
	keys := testKeys()
	original := make([]SearchKey, len(keys))
	copy(original, keys)

	for _, seed := range []int64{1, 42, -7, 1_700_000_000} {
		a := ShuffleKeys(keys, seed)
		b := ShuffleKeys(keys, seed)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("seed %d: shuffle is not deterministic", seed)
		}
		if len(a) != len(keys) {
			t.Fatalf("seed %d: length changed to %d", seed, len(a))
		}

		seen := make(map[int]SearchKey, len(a))
		for _, k := range a {
			if _, dup := seen[k.Index]; dup {
				t.Fatalf("seed %d: index %d appears twice", seed, k.Index)
			}
			seen[k.Index] = k
		}
		for _, k := range keys {
			if seen[k.Index] != k {
				t.Fatalf("seed %d: key %+v lost or altered", seed, k)
			}
		}
	}

	if !reflect.DeepEqual(keys, original) {
		t.Fatal("ShuffleKeys mutated its input")
	}
}

func TestShuffleKeys_SeedsDiffer(t *testing.T) {
	keys := testKeys()
	if reflect.DeepEqual(ShuffleKeys(keys, 1), ShuffleKeys(keys, 2)) {
		t.Fatal("expected different seeds to give different orders")
	}
}

func TestNewSeed_NonZero(t *testing.T) {
	for i := 0; i < 100; i++ {
		if NewSeed() == 0 {
			t.Fatal("NewSeed returned 0")
		}
	}
}
