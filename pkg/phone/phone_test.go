package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		region  string
		want    string
		sip     bool
		wantErr bool
	}{
		{name: "e164 passthrough", raw: "+16502530000", region: "US", want: "+16502530000"},
		{name: "national with region", raw: "(650) 253-0000", region: "US", want: "+16502530000"},
		{name: "lowercase region", raw: "650 253 0000", region: "us", want: "+16502530000"},
		{name: "uk international", raw: "+44 20 7031 3000", region: "US", want: "+442070313000"},
		{name: "sip uri", raw: "sip:agent@example.com", region: "US", want: "sip:agent@example.com", sip: true},
		{name: "empty", raw: "  ", region: "US", wantErr: true},
		{name: "letters", raw: "not-a-number", region: "US", wantErr: true},
		{name: "too short", raw: "12", region: "US", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst, err := Parse(tt.raw, tt.region)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sip, dst.IsSIP)
			assert.Equal(t, tt.want, dst.Dialable())
		})
	}
}
