package provider

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// SID prefixes, Twilio style.
const (
	SidPrefixMessage = "SM"
	SidPrefixCall    = "CA"
)

// GenerateSid returns a Twilio-shaped SID: the prefix followed by 32
// lowercase hex characters.
func GenerateSid(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:])
}
