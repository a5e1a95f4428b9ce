package cncp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// WriteToken is the capability authorizing one direct write to one blob.
// It binds the encoded blob identifier to an upload session id.
// Its encoded form is signed with a secret held by the issuing store.
type WriteToken struct {
	BlobID   string
	UploadID string
}

// Encode produces the signed string form of the token:
//
//	base64(BlobID + "#" + UploadID) + "#" + base64(HMAC-SHA1(secret, payload))
//
// It returns an error wrapping ErrSigning if secret is empty.
func (t WriteToken) Encode(secret []byte) (string, error) {
	payload := base64.StdEncoding.EncodeToString([]byte(t.BlobID + "#" + t.UploadID))
	sig, err := sign(payload, secret)
	if err != nil {
		return "", err
	}
	return payload + "#" + sig, nil
}

// DecodeWriteToken verifies and decodes the string form of a WriteToken.
// It returns an error wrapping ErrInvalidToken
// if the signature does not match one computed with secret,
// or if the payload is malformed.
func DecodeWriteToken(encoded string, secret []byte) (WriteToken, error) {
	payload, gotSig, ok := strings.Cut(encoded, "#")
	if !ok {
		return WriteToken{}, errors.Wrap(ErrInvalidToken, "missing signature")
	}
	wantSig, err := sign(payload, secret)
	if err != nil {
		return WriteToken{}, err
	}
	if !hmac.Equal([]byte(gotSig), []byte(wantSig)) {
		return WriteToken{}, errors.Wrap(ErrInvalidToken, "signature mismatch")
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return WriteToken{}, errors.Wrapf(ErrInvalidToken, "decoding payload: %s", err)
	}
	blobID, uploadID, ok := strings.Cut(string(decoded), "#")
	if !ok {
		return WriteToken{}, errors.Wrap(ErrInvalidToken, "malformed payload")
	}
	return WriteToken{BlobID: blobID, UploadID: uploadID}, nil
}

func sign(payload string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.Wrap(ErrSigning, "empty secret")
	}
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
