package diff

import (
	"math"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"user_name", "username", 1 - 1.0/9},
		{"name", "name", 1},
		{"Name", "name", 1},
		{"email", "email_address", 0.8},
		{"id", "user_id", 1 - 5.0/7},
		{"email", "password", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTypesCompatible(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"varchar(100)", "varchar(100)", true},
		{"varchar(100)", "text", true},
		{"char(2)", "varchar(10)", true},
		{"int", "bigint unsigned", true},
		{"decimal(8,2)", "double", true},
		{"datetime", "timestamp", true},
		{"varchar(20)", "int", false},
		{"json", "text", false},
		{"json", "JSON", true},
		{"blob", "longblob", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			if got := TypesCompatible(tt.a, tt.b); got != tt.want {
				t.Errorf("TypesCompatible(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
