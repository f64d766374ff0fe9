package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smtree/smt/merkle"
)

func TestObserverRecordsUpdatesAndGets(t *testing.T) {
	if err := Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	o := NewObserver()
	before := testutil.ToFloat64(updatesTotal)

	var k, root merkle.H256
	o.OnUpdate(k, root)
	o.OnGet(k, true)
	o.OnGet(k, false)

	after := testutil.ToFloat64(updatesTotal)
	if after != before+1 {
		t.Fatalf("updatesTotal = %v, want %v", after, before+1)
	}
}
