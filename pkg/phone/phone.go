package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// ErrInvalidNumber is returned for destinations that are neither a SIP URI nor a valid phone number.
var ErrInvalidNumber = errors.New("invalid phone number")

// Destination is a dial target after normalization.
type Destination struct {
	Raw         string
	E164        string
	CountryCode int32
	IsSIP       bool
}

// Dialable returns the string to hand to the provider.
func (d Destination) Dialable() string {
	if d.IsSIP {
		return d.Raw
	}
	return d.E164
}

// Parse normalizes a dial-out target. SIP URIs pass through untouched; anything else must
// parse as a valid number, using defaultRegion when it carries no country code.
func Parse(raw, defaultRegion string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	if strings.HasPrefix(strings.ToLower(raw), "sip:") {
		return Destination{Raw: raw, IsSIP: true}, nil
	}

	number, err := libphonenumber.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
	}
	if !libphonenumber.IsValidNumber(number) {
		return Destination{}, fmt.Errorf("%w: %s", ErrInvalidNumber, raw)
	}

	return Destination{
		Raw:         raw,
		E164:        libphonenumber.Format(number, libphonenumber.E164),
		CountryCode: number.GetCountryCode(),
	}, nil
}
