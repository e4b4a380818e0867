package whapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthNormalize(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Health
	}{
		{"auth with user id", `{"status":{"code":4,"text":"AUTH"},"user":{"id":"5511999999999"}}`, Health{Connected: true, Phone: "5511999999999", State: "AUTH"}},
		{"authorized flag and me phone", `{"status":"connected","authorized":true,"me":{"phone":"5511888"}}`, Health{Connected: true, Phone: "5511888", State: "CONNECTED"}},
		{"top level phone", `{"status":{"text":"AUTH"},"phone":"5511777","user":{"id":"other"}}`, Health{Connected: true, Phone: "5511777", State: "AUTH"}},
		{"qr pending", `{"status":{"code":3,"text":"QR"},"user":{"id":"5511999999999"}}`, Health{Connected: false, State: "QR"}},
		{"sync error", `{"status":{"text":"SYNC_ERROR"}}`, Health{State: "SYNC_ERROR"}},
		{"empty", `{}`, Health{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var res HealthResponse
			require.NoError(t, json.Unmarshal([]byte(tc.body), &res))
			assert.Equal(t, tc.want, res.Normalize())
		})
	}
}
