package gcs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/cncp"
)

const (
	identPrefix   = "i/"
	payloadPrefix = "b/"
)

// invMillis maps a time to a fixed-width decimal string
// that sorts in reverse chronological order,
// so that listing identity objects produces the newest blobs first.
func invMillis(t time.Time) string {
	u := uint64(t.UnixMilli()) ^ (1 << 63)
	return fmt.Sprintf("%020d", math.MaxUint64-u)
}

func invMillisToTime(s string) (time.Time, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing %s", s)
	}
	ms := int64((math.MaxUint64 - n) ^ (1 << 63))
	return time.UnixMilli(ms).UTC(), nil
}

func idHash(id cncp.Identifier) string {
	sum := sha256.Sum256([]byte(id.String()))
	return hex.EncodeToString(sum[:])
}

// identObjName is the name of the object recording id,
// i/<inverted creation time>/<hash of id>.
func identObjName(id cncp.Identifier) string {
	return identPrefix + invMillis(id.Created()) + "/" + idHash(id)
}

// payloadObjName is the name of the object holding the payload of id.
func payloadObjName(id cncp.Identifier) string {
	return payloadPrefix + idHash(id)
}

// createdFromIdentObjName recovers the creation time encoded in an identity object name.
func createdFromIdentObjName(name string) (time.Time, error) {
	rest := strings.TrimPrefix(name, identPrefix)
	inv, _, ok := strings.Cut(rest, "/")
	if !ok || rest == name {
		return time.Time{}, fmt.Errorf("malformed identity object name %s", name)
	}
	return invMillisToTime(inv)
}
