package cncp

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"testing/quick"
	"time"
)

func TestIdentifierFields(t *testing.T) {
	now := time.Now()
	id := MakeIdentifier("id", "name", 10, now)

	if id.UniqueID() != "id" {
		t.Errorf("got unique id %q, want %q", id.UniqueID(), "id")
	}
	if id.Name() != "name" {
		t.Errorf("got name %q, want %q", id.Name(), "name")
	}
	if id.Len() != 10 {
		t.Errorf("got length %d, want 10", id.Len())
	}
	if id.Created().UnixMilli() != now.UnixMilli() {
		t.Errorf("got created %s, want %s", id.Created(), now)
	}
}

func TestIdentifierEncoding(t *testing.T) {
	created := time.Date(2021, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	id := MakeIdentifier("abc", "file.txt", 42, created)

	want := base64.StdEncoding.EncodeToString([]byte("abc#!#file.txt#!#42#!#1614834367008"))
	if id.String() != want {
		t.Errorf("got %s, want %s", id.String(), want)
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	f := func(uniqueID, name string, length uint32, millis int64) bool {
		if strings.Contains(uniqueID, identDelim) {
			return true
		}
		created := time.UnixMilli(millis % (1 << 45))
		id := MakeIdentifier(uniqueID, name, int64(length), created)

		got, err := ParseIdentifier(id.String())
		if err != nil {
			t.Logf("parsing %s: %s", id, err)
			return false
		}
		if got.UniqueID() != uniqueID || got.Name() != name || got.Len() != int64(length) {
			t.Logf("got (%q, %q, %d), want (%q, %q, %d)", got.UniqueID(), got.Name(), got.Len(), uniqueID, name, length)
			return false
		}
		if !got.Created().Equal(id.Created()) {
			t.Logf("got created %s, want %s", got.Created(), id.Created())
			return false
		}
		return got.Equal(id) && got.String() == id.String()
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestIdentifierEquality(t *testing.T) {
	created := time.Now()
	a := MakeIdentifier("x", "y", 1, created)
	b := MakeIdentifier("x", "y", 1, created.In(time.FixedZone("UTC+3", 3*60*60)))
	if !a.Equal(b) {
		t.Error("identifiers with the same fields are not equal")
	}
	m := map[string]int{a.String(): 1}
	if m[b.String()] != 1 {
		t.Error("identifiers with the same fields key differently")
	}

	c := MakeIdentifier("x", "y", 2, created)
	if a.Equal(c) {
		t.Error("identifiers with different lengths are equal")
	}
}

func newID(t *testing.T, name string, length int64) Identifier {
	t.Helper()
	id, err := NewIdentifier(name, length)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestNewIdentifierIsUnique(t *testing.T) {
	a := newID(t, "same", 1)
	b := newID(t, "same", 1)
	if a.Equal(b) {
		t.Errorf("two new identifiers are equal: %s", a)
	}
}

func TestNewIdentifierLength(t *testing.T) {
	for _, length := range []int64{0, 1, 1 << 40} {
		id := newID(t, "ok", length)
		parsed, err := ParseIdentifier(id.String())
		if err != nil {
			t.Fatalf("length %d: %s", length, err)
		}
		if parsed.Len() != length {
			t.Errorf("got length %d, want %d", parsed.Len(), length)
		}
	}

	for _, length := range []int64{-1, -1 << 40} {
		if _, err := NewIdentifier("bad", length); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("length %d: got error %v, want ErrInvalidIdentifier", length, err)
		}
	}
}

func TestParseIdentifierNameWithDelimiter(t *testing.T) {
	id := MakeIdentifier("u", "a#!#b", 3, time.Now())
	got, err := ParseIdentifier(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "a#!#b" {
		t.Errorf("got name %q, want %q", got.Name(), "a#!#b")
	}
}

func TestParseIdentifierErrors(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	cases := []struct {
		name string
		inp  string
	}{
		{name: "not_base64", inp: "%%%"},
		{name: "too_few_fields", inp: enc("a#!#b#!#3")},
		{name: "bad_length", inp: enc("a#!#b#!#x#!#4")},
		{name: "negative_length", inp: enc("a#!#b#!#-1#!#4")},
		{name: "bad_timestamp", inp: enc("a#!#b#!#3#!#soon")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseIdentifier(c.inp)
			if !errors.Is(err, ErrInvalidIdentifier) {
				t.Errorf("got error %v, want ErrInvalidIdentifier", err)
			}
		})
	}
}
