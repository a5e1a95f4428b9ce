package cncp

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const identDelim = "#!#"

// Identifier identifies a blob.
// It carries a unique id, a display name (not unique),
// the declared length of the blob in bytes,
// and its creation time.
//
// An Identifier is immutable.
// Its string form (see String) is a pure function of those four fields,
// so two Identifiers with the same fields have the same string form
// and compare equal with Equal.
type Identifier struct {
	uniqueID string
	name     string
	length   int64
	created  time.Time
	encoded  string
}

// NewIdentifier mints a new Identifier with a random unique id
// and the current time (truncated to the millisecond, in UTC).
// It returns an error wrapping ErrInvalidIdentifier if length is negative,
// since such an identifier could not be parsed back.
func NewIdentifier(name string, length int64) (Identifier, error) {
	if length < 0 {
		return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "negative length %d for %s", length, name)
	}
	return MakeIdentifier(uuid.NewString(), name, length, time.Now()), nil
}

// MakeIdentifier produces an Identifier from its fields.
// The creation time is kept only to millisecond precision, in UTC,
// since that is all the encoding can carry.
// The length must not be negative;
// NewIdentifier and ParseIdentifier check this, MakeIdentifier does not.
func MakeIdentifier(uniqueID, name string, length int64, created time.Time) Identifier {
	created = time.UnixMilli(created.UnixMilli()).UTC()
	return Identifier{
		uniqueID: uniqueID,
		name:     name,
		length:   length,
		created:  created,
		encoded:  encodeIdentifier(uniqueID, name, length, created),
	}
}

func encodeIdentifier(uniqueID, name string, length int64, created time.Time) string {
	joined := strings.Join([]string{
		uniqueID,
		name,
		strconv.FormatInt(length, 10),
		strconv.FormatInt(created.UnixMilli(), 10),
	}, identDelim)
	return base64.StdEncoding.EncodeToString([]byte(joined))
}

// ParseIdentifier decodes the string form of an Identifier.
// It returns an error wrapping ErrInvalidIdentifier
// if s is not valid base64,
// does not contain all four fields,
// or has a non-integer length or timestamp.
//
// A name that itself contains the field delimiter survives the round trip:
// the first field is the unique id,
// the last two are the length and timestamp,
// and everything in between is the name.
func ParseIdentifier(s string) (Identifier, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "decoding %q: %s", s, err)
	}
	parts := strings.Split(string(decoded), identDelim)
	if len(parts) < 4 {
		return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "%q has %d fields, want 4", decoded, len(parts))
	}
	var (
		n        = len(parts)
		uniqueID = parts[0]
		name     = strings.Join(parts[1:n-2], identDelim)
	)
	length, err := strconv.ParseInt(parts[n-2], 10, 64)
	if err != nil || length < 0 {
		return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "bad length %q", parts[n-2])
	}
	millis, err := strconv.ParseInt(parts[n-1], 10, 64)
	if err != nil {
		return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "bad timestamp %q", parts[n-1])
	}
	return MakeIdentifier(uniqueID, name, length, time.UnixMilli(millis)), nil
}

// UniqueID is the random, process-unique part of the identifier.
func (id Identifier) UniqueID() string { return id.uniqueID }

// Name is the display name given when the blob was created.
func (id Identifier) Name() string { return id.name }

// Len is the declared length of the blob in bytes.
func (id Identifier) Len() int64 { return id.length }

// Created is the blob's creation time, in UTC, to millisecond precision.
func (id Identifier) Created() time.Time { return id.created }

// String produces the canonical encoded form of the identifier.
// It is the key under which every Store indexes the blob.
func (id Identifier) String() string { return id.encoded }

// IsZero tells whether id is the zero Identifier.
func (id Identifier) IsZero() bool { return id.encoded == "" }

// Equal tells whether two identifiers have the same fields.
func (id Identifier) Equal(other Identifier) bool {
	return id.encoded == other.encoded
}
