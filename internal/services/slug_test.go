package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Home Cleaning":           "home-cleaning",
		"  AC  Repair & Service ": "ac-repair-service",
		"Café Décor":              "cafe-decor",
		"Plumbing_101":            "plumbing-101",
		"---":                     "",
		"ঘর পরিষ্কার":             "",
	}

	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}
