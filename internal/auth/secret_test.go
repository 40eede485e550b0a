package auth

import "testing"

func TestSecretMatches(t *testing.T) {
	tests := []struct {
		name      string
		presented string
		expected  string
		want      bool
	}{
		{"equal", "s3cret", "s3cret", true},
		{"surrounding whitespace", " s3cret\n", "s3cret", true},
		{"different", "guess", "s3cret", false},
		{"prefix", "s3c", "s3cret", false},
		{"empty presented", "", "s3cret", false},
		{"empty expected", "", "", false},
		{"blank expected", "anything", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecretMatches(tt.presented, tt.expected); got != tt.want {
				t.Errorf("SecretMatches(%q, %q) = %v, want %v", tt.presented, tt.expected, got, tt.want)
			}
		})
	}
}
