package query

import (
	"reflect"
	"testing"
)

func TestExpandIdentifierVariants(t *testing.T) {
	got := Expand("quais os critérios de aceite da US-1234?")

	want := []string{
		"quais os critérios de aceite da US-1234?",
		"US-1234",
		"US 1234",
		"US1234",
		"1234",
		"user story 1234",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand() = %v, want %v", got, want)
	}
}

func TestExpandOriginalAlwaysFirst(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"with identifier", "status da STORY 5678"},
		{"without identifier", "como configurar o ambiente de homologação"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Expand(tt.raw)
			if len(got) == 0 || got[0] != tt.raw {
				t.Errorf("Expand(%q) first variant = %v, want original message", tt.raw, got)
			}
		})
	}
}

func TestExpandNoIdentifier(t *testing.T) {
	got := Expand("como funciona o fluxo de aprovação?")
	if len(got) != 1 {
		t.Fatalf("expected only the original message, got %v", got)
	}
}

func TestExpandNoDuplicates(t *testing.T) {
	got := Expand("US-1234 e de novo US-1234")

	seen := make(map[string]bool)
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate variant %q in %v", v, got)
		}
		seen[v] = true
	}
}

func TestExpandSeparatorForms(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"detalhes de US 1234", "US-1234"},
		{"detalhes de us_1234", "us-1234"},
		{"detalhes de US1234", "US 1234"},
	}

	for _, tt := range tests {
		got := Expand(tt.raw)
		found := false
		for _, v := range got {
			if v == tt.want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expand(%q) = %v, missing variant %q", tt.raw, got, tt.want)
		}
	}
}

func TestExpandDeterministic(t *testing.T) {
	first := Expand("valide a US-1234 e a AB-99")
	for i := 0; i < 5; i++ {
		if again := Expand("valide a US-1234 e a AB-99"); !reflect.DeepEqual(first, again) {
			t.Fatalf("Expand is not deterministic: %v vs %v", first, again)
		}
	}
}
