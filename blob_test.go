package cncp_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bobg/cncp"
	"github.com/bobg/cncp/store/mem"
)

func TestBlob(t *testing.T) {
	ctx := context.Background()
	s := mem.New([]byte("secret"))

	blob, err := s.Create(ctx, "greeting.txt", 5)
	if err != nil {
		t.Fatal(err)
	}
	if blob.Name() != "greeting.txt" {
		t.Errorf("got name %s", blob.Name())
	}
	if blob.Len() != 5 {
		t.Errorf("got length %d", blob.Len())
	}
	if blob.Created().IsZero() {
		t.Error("zero creation time")
	}
	if blob.String() != blob.ID().String() {
		t.Errorf("String %s differs from encoded id %s", blob, blob.ID())
	}

	wc, err := blob.BeginDirectWrite(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if wc.Len() != 5 {
		t.Errorf("write context expects %d bytes, want 5", wc.Len())
	}
	if _, err = wc.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if ok, err := blob.EndDirectWrite(ctx, wc); err != nil || !ok {
		t.Fatalf("EndDirectWrite returned (%v, %v)", ok, err)
	}

	again, err := s.Blob(ctx, blob.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(blob) {
		t.Error("blob fetched by id is not equal to the original")
	}

	rc, err := again.BeginDirectRead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if err = rc.Close(); err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	if ok, err := again.Delete(ctx); err != nil || !ok {
		t.Fatalf("Delete returned (%v, %v)", ok, err)
	}
	if ok, err := blob.Exists(ctx); err != nil || ok {
		t.Errorf("Exists after delete returned (%v, %v)", ok, err)
	}
}

func TestNilWriteContext(t *testing.T) {
	ctx := context.Background()
	s := mem.New([]byte("secret"))

	blob, err := s.Create(ctx, "x", 0)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := blob.EndDirectWrite(ctx, nil)
	if ok || err == nil {
		t.Errorf("EndDirectWrite(nil) returned (%v, %v)", ok, err)
	}
	if !errors.Is(err, cncp.ErrInvalidToken) {
		t.Errorf("got error %v, want ErrInvalidToken", err)
	}
}
