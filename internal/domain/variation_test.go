package domain

import (
	"reflect"
	"testing"
)

func TestBuildVariationKey(t *testing.T) {
	tests := []struct {
		name      string
		selection map[string]string
		want      string
	}{
		{name: "nil", selection: nil, want: ""},
		{name: "empty", selection: map[string]string{}, want: ""},
		{name: "single", selection: map[string]string{"color": "red"}, want: "color:red"},
		{name: "sorted by key", selection: map[string]string{"size": "M", "color": "red"}, want: "color:red,size:M"},
		{name: "trims and drops empty", selection: map[string]string{" color ": " red ", "size": ""}, want: "color:red"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildVariationKey(tc.selection); got != tc.want {
				t.Fatalf("BuildVariationKey() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseVariationKey_DropsMalformedPairs(t *testing.T) {
	selection, dropped := SplitVariationKey("color:red,broken,:x,size:")
	want := map[string]string{"color": "red"}
	if !reflect.DeepEqual(selection, want) {
		t.Fatalf("selection = %v, want %v", selection, want)
	}
	if len(dropped) != 3 {
		t.Fatalf("dropped = %v, want 3 pairs", dropped)
	}

	if got := ParseVariationKey(""); len(got) != 0 {
		t.Fatalf("empty key must parse to empty map, got %v", got)
	}
}

func TestVariationKeyRoundTrip(t *testing.T) {
	selections := []map[string]string{
		{},
		{"color": "red"},
		{"size": "XL", "color": "blue", "finish": "matte"},
		{"b": "2", "a": "1"},
		{" padded ": "v", "empty": ""},
	}

	for _, selection := range selections {
		got := ParseVariationKey(BuildVariationKey(selection))
		want := CanonicalSelection(selection)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip of %v = %v, want %v", selection, got, want)
		}
	}

	a := BuildVariationKey(map[string]string{"color": "red", "size": "M"})
	b := BuildVariationKey(map[string]string{"size": "M", "color": "red"})
	if a != b {
		t.Fatalf("key must be order independent: %q vs %q", a, b)
	}
}

func TestValidateSelection(t *testing.T) {
	schema := []VariationOption{
		{ID: "color", AllowedValues: []string{"red", "blue"}, Required: true},
		{ID: "size", AllowedValues: []string{"S", "M"}, Required: false},
	}

	tests := []struct {
		name      string
		schema    []VariationOption
		selection map[string]string
		want      bool
	}{
		{name: "schema-less empty", schema: nil, selection: nil, want: true},
		{name: "schema-less with selection", schema: nil, selection: map[string]string{"color": "red"}, want: false},
		{name: "required present", schema: schema, selection: map[string]string{"color": "red"}, want: true},
		{name: "required missing", schema: schema, selection: map[string]string{"size": "S"}, want: false},
		{name: "disallowed value", schema: schema, selection: map[string]string{"color": "green"}, want: false},
		{name: "optional disallowed", schema: schema, selection: map[string]string{"color": "red", "size": "XL"}, want: false},
		{name: "unknown axis ignored", schema: schema, selection: map[string]string{"color": "blue", "finish": "gloss"}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateSelection(tc.schema, tc.selection); got != tc.want {
				t.Fatalf("ValidateSelection() = %v, want %v", got, tc.want)
			}
		})
	}
}
