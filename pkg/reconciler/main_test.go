package reconciler

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// the etcd client keeps idle http connections around
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}
