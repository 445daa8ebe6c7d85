package parse

import (
	"errors"
	"strconv"
	"strings"
)

// IdentKind tags how a machine identifier should be resolved.
type IdentKind int

const (
	ByID IdentKind = iota
	ByIP
)

// Identifier is the result of interpreting an untyped machine identifier.
// Numeric strings resolve by ID, everything else by IP.
type Identifier struct {
	Kind IdentKind
	ID   int64
	IP   string
}

// ErrEmptyIdentifier is returned when no usable identifier was supplied.
var ErrEmptyIdentifier = errors.New("empty machine identifier")

// Identify interprets a raw path or body value. The integer parse is
// attempted first; anything non-numeric is treated as an IP string.
func Identify(raw string) (Identifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Identifier{}, ErrEmptyIdentifier
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Identifier{Kind: ByID, ID: id}, nil
	}
	return Identifier{Kind: ByIP, IP: s}, nil
}

// FromFields builds an Identifier from separate ip/id request fields.
// The IP wins when both are present; devices identify themselves by IP
// and may not know their registry ID.
func FromFields(ip string, id *int64) (Identifier, error) {
	if strings.TrimSpace(ip) != "" {
		return Identifier{Kind: ByIP, IP: strings.TrimSpace(ip)}, nil
	}
	if id != nil {
		return Identifier{Kind: ByID, ID: *id}, nil
	}
	return Identifier{}, ErrEmptyIdentifier
}
