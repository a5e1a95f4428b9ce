package gcs

import (
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/bobg/cncp"
)

func TestInvMillis(t *testing.T) {
	tests := []struct {
		name string
		fn   interface{}
	}{
		{
			name: "reversible",
			fn: func(ms int64) bool {
				tm := time.UnixMilli(ms)
				got, err := invMillisToTime(invMillis(tm))
				return err == nil && got.Equal(tm)
			},
		},
		{
			name: "ordering",
			fn: func(ms1, ms2 int64) bool {
				s1 := invMillis(time.UnixMilli(ms1))
				s2 := invMillis(time.UnixMilli(ms2))
				if len(s1) != 20 || len(s2) != 20 {
					return false
				}
				switch {
				case ms1 < ms2:
					return s1 > s2
				case ms1 > ms2:
					return s1 < s2
				}
				return s1 == s2
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := quick.Check(tt.fn, nil); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestObjNames(t *testing.T) {
	created := time.Date(2021, 3, 4, 5, 6, 7, 8e6, time.UTC)
	id := cncp.MakeIdentifier("abc", "x/y.txt", 3, created)

	iname := identObjName(id)
	if !strings.HasPrefix(iname, identPrefix) {
		t.Errorf("identity object name %s lacks prefix %s", iname, identPrefix)
	}
	got, err := createdFromIdentObjName(iname)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(created) {
		t.Errorf("got creation time %s, want %s", got, created)
	}

	pname := payloadObjName(id)
	if !strings.HasPrefix(pname, payloadPrefix) || strings.Count(pname, "/") != 1 {
		t.Errorf("malformed payload object name %s", pname)
	}

	newer := cncp.MakeIdentifier("abc", "x/y.txt", 3, created.Add(time.Millisecond))
	if identObjName(newer) >= iname {
		t.Errorf("newer identity %s does not sort before older %s", identObjName(newer), iname)
	}

	if _, err := createdFromIdentObjName("b/123"); err == nil {
		t.Error("parsed a payload object name as an identity object name")
	}
}
