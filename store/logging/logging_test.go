package logging

import (
	"testing"

	"k8s.io/klog/v2/ktesting"

	"github.com/bobg/cncp/store/mem"
	"github.com/bobg/cncp/testutil"
)

func TestStore(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	testutil.Store(ctx, t, New(mem.New([]byte("secret"))))
}
