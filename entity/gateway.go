package entity

import (
	"fmt"
	"strings"
)

// AddressStyle selects how a WhatsApp recipient is written in a send request.
type AddressStyle string

const (
	AddressNumber    AddressStyle = "number"     // {"number":"5511999999999"}
	AddressE164      AddressStyle = "e164"       // {"number":"+5511999999999"}
	AddressJID       AddressStyle = "jid"        // {"number":"5511999999999@s.whatsapp.net"}
	AddressRemoteJID AddressStyle = "remote_jid" // {"remoteJid":"5511999999999@s.whatsapp.net"}

	JIDSuffix = "@s.whatsapp.net"
)

func ParseAddressStyle(s string) (AddressStyle, error) {
	switch AddressStyle(strings.ToLower(strings.TrimSpace(s))) {
	case "", AddressNumber:
		return AddressNumber, nil
	case AddressE164, "plus":
		return AddressE164, nil
	case AddressJID:
		return AddressJID, nil
	case AddressRemoteJID, "remotejid":
		return AddressRemoteJID, nil
	}
	return "", fmt.Errorf("unknown address style %q", s)
}

// Field returns the JSON key and value addressing digits in this style.
func (s AddressStyle) Field(digits string) (string, string) {
	switch s {
	case AddressE164:
		return "number", "+" + digits
	case AddressJID:
		return "number", digits + JIDSuffix
	case AddressRemoteJID:
		return "remoteJid", digits + JIDSuffix
	default:
		return "number", digits
	}
}

// GatewaySendRequest is one outbound WhatsApp send. Exactly one of Text or
// MediaURL is set.
type GatewaySendRequest struct {
	Recipient string
	Text      string
	MediaURL  string
	MediaName string
}
