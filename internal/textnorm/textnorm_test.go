package textnorm

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"case folding", "Guest BEDROOM", "guest bedroom"},
		{"punctuation", "Guest-Bedroom's  lamp!", "guest bedroom s lamp"},
		{"underscores", "living_room.light", "living room light"},
		{"whitespace", "  kitchen \t\n island ", "kitchen island"},
		{"full width", "ＫＩＴＣＨＥＮ", "kitchen"},
		{"german sharp s", "Straße", "strasse"},
		{"cjk untouched", "客厅 灯", "客厅 灯"},
		{"only punctuation", "--!!--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("Master_Bedroom Lamp")
	want := []string{"master", "bedroom", "lamp"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens() = %v, want %v", got, want)
	}
}

func TestRelated(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"guest bedroom", "guest bedroom", true},
		{"guest bedroom", "bedroom", true},
		{"bedroom", "guest bedroom", true},
		{"kitchen", "bedroom", false},
		{"", "kitchen", false},
		{"kitchen", "", false},
	}

	for _, tt := range tests {
		if got := Related(tt.a, tt.b); got != tt.want {
			t.Errorf("Related(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSquash(t *testing.T) {
	if got := Squash("living room"); got != "livingroom" {
		t.Errorf("Squash() = %q, want livingroom", got)
	}
}
