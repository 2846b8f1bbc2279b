package normalization

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  Fireball ":        "fireball",
		"Basic   Sword\tArt": "basic sword art",
		"":                   "",
		"INNKEEPER":          "innkeeper",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalizeNamesDedupes(t *testing.T) {
	got := NormalizeNames([]string{"Warrior", " warrior", "", "Mage"})
	if len(got) != 2 || got[0] != "warrior" || got[1] != "mage" {
		t.Fatalf("unexpected %v", got)
	}
}
