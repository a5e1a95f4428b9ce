// Package cncp is a minimal content repository.
//
// A content repository has two halves.
// The first is a blob store,
// which holds opaque byte sequences,
// or _payloads_,
// each addressed by an Identifier.
// The second is a node store
// (in the node subpackage),
// which holds a tree of named nodes with timestamps, properties,
// and optional Content descriptors,
// much like the directory entries of a filesystem.
// The two halves are independent;
// the fs subpackage composes them into something that looks like a filesystem.
//
// An Identifier is self-describing.
// Its string form encodes a random unique id,
// a display name,
// the declared length of the payload,
// and the creation time,
// so any holder of the string can recover those fields without asking the store.
// The string form is also the key every Store uses for the blob.
//
// Payloads can be transferred in two ways.
// A buffered transfer hands the bytes to Store.Write or takes them from Store.Read.
// A direct transfer models an out-of-band upload
// (the kind one would do with a pre-signed URL):
// Store.BeginDirectWrite issues a WriteContext carrying a WriteToken
// signed with a secret only the store knows,
// the caller stages bytes in the context,
// and Store.EndDirectWrite commits them only if the token verifies
// and names the same blob.
// Nothing is committed until then,
// so abandoning a WriteContext leaves the store unchanged.
//
// Store implementations live in subpackages of store:
// an in-memory store,
// stores backed by the local filesystem, SQLite, PostgreSQL, Google Cloud Storage, and Bigtable,
// a gRPC client and server,
// and wrappers that add caching, compression, or logging to another store.
// Each registers itself with store.Register
// so that a store can be built from configuration with store.Create.
package cncp
