package registry

import (
	"encoding/binary"
	"errors"
	"time"
)

// CurrentSchemaVersion is the binary layout version written by Encode.
const CurrentSchemaVersion = 1

// ErrCorruptEntry is returned when a stored registry blob cannot be decoded.
var ErrCorruptEntry = errors.New("corrupt registry entry")

// Entry is one tracked refresh token. TokenID is the JWT's ID claim and is
// the Redis key, so it is not part of the encoded blob.
type Entry struct {
	TokenID   string
	AccountID string
	IssuedAt  int64
	ExpiresAt int64
	Revoked   bool
}

// Expired reports whether the entry's validity window has passed at now.
func (e *Entry) Expired(now time.Time) bool {
	return e.ExpiresAt <= now.Unix()
}

// Encode serializes an entry into the compact binary wire format:
//
//	[version u8][revoked u8][issuedAt i64 BE][expiresAt i64 BE]
//	[accountID len u16 BE][accountID bytes]
func Encode(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, ErrCorruptEntry
	}
	if len(e.AccountID) == 0 || len(e.AccountID) > 0xFFFF {
		return nil, ErrCorruptEntry
	}

	buf := make([]byte, 0, 20+len(e.AccountID))
	buf = append(buf, CurrentSchemaVersion)
	if e.Revoked {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.IssuedAt))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.ExpiresAt))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(e.AccountID)))
	buf = append(buf, e.AccountID...)

	return buf, nil
}

// Decode parses a binary registry blob produced by Encode.
func Decode(data []byte) (*Entry, error) {
	if len(data) < 20 {
		return nil, ErrCorruptEntry
	}
	if data[0] != CurrentSchemaVersion {
		return nil, ErrCorruptEntry
	}
	if data[1] > 1 {
		return nil, ErrCorruptEntry
	}

	accountLen := int(binary.BigEndian.Uint16(data[18:20]))
	if accountLen == 0 || len(data) != 20+accountLen {
		return nil, ErrCorruptEntry
	}

	return &Entry{
		Revoked:   data[1] == 1,
		IssuedAt:  int64(binary.BigEndian.Uint64(data[2:10])),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[10:18])),
		AccountID: string(data[20 : 20+accountLen]),
	}, nil
}
