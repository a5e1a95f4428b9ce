package node

import (
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// DefaultContentType is the MIME type of content whose type cannot be inferred.
const DefaultContentType = "application/octet-stream"

// Content describes a payload kept elsewhere,
// typically a blob in a cncp.Store.
// It does not hold the bytes.
type Content struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

// NewContent produces a Content with a fresh unique ID
// and a MIME type inferred from the extension of name.
func NewContent(name string, length int64) Content {
	return NewTypedContent(name, length, "")
}

// NewTypedContent produces a Content with a fresh unique ID and the given MIME type.
// If typ is empty it is inferred from the extension of name.
func NewTypedContent(name string, length int64, typ string) Content {
	if typ == "" {
		typ = TypeByName(name)
	}
	return Content{
		Name:   name,
		Length: length,
		Type:   typ,
		ID:     uuid.NewString(),
	}
}

// TypeByName infers a MIME type, without parameters, from the extension of name.
// It returns DefaultContentType if the extension is unknown.
func TypeByName(name string) string {
	typ := mime.TypeByExtension(path.Ext(name))
	if typ == "" {
		return DefaultContentType
	}
	typ, _, _ = strings.Cut(typ, ";")
	return strings.TrimSpace(typ)
}
