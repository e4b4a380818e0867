package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"5511999999999@s.whatsapp.net": "5511999999999",
		"+55 11 99999-9999":            "5511999999999",
		"5511999999999:12@c.us":        "5511999999999",
		"":                             "",
		"abc":                          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestSamePhone(t *testing.T) {
	assert.True(t, SamePhone("+55 11 99999-9999", "5511999999999@s.whatsapp.net"))
	assert.False(t, SamePhone("5511999999999", "5511888888888"))
	assert.False(t, SamePhone("", ""))
}
