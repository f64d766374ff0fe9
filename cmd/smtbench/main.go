// Copyright 2016 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command smtbench drives a synthetic update/get workload against an
// in-memory sparse Merkle tree and reports throughput, optionally
// exporting the same metrics to Stackdriver for a longer-running soak.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"time"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/golang/glog"

	"github.com/smtree/smt/hashers/blake2b"
	"github.com/smtree/smt/internal/metrics"
	"github.com/smtree/smt/merkle"
	"github.com/smtree/smt/storage/memstore"
)

var (
	numKeys       = flag.Int("keys", 10000, "number of operations, each on its own distinct random key")
	readFraction  = flag.Float64("read_fraction", 0.5, "fraction of operations that are Get rather than Update")
	stackdriverID = flag.String("stackdriver_project", "", "if set, export OpenCensus metrics to this Stackdriver project")
)

type benchValue [8]byte

func (v benchValue) Equal(other merkle.Value) bool {
	o, ok := other.(benchValue)
	return ok && v == o
}

func (v benchValue) Hash(h merkle.Hasher) merkle.H256 {
	h.Write(v[:])
	return h.Sum()
}

func (v benchValue) IsZero() bool {
	return v == benchValue{}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := metrics.Register(); err != nil {
		glog.Fatalf("smtbench: registering OpenCensus views: %v", err)
	}
	if *stackdriverID != "" {
		exporter, err := stackdriver.NewExporter(stackdriver.Options{ProjectID: *stackdriverID})
		if err != nil {
			glog.Fatalf("smtbench: stackdriver exporter: %v", err)
		}
		if err := exporter.StartMetricsExporter(); err != nil {
			glog.Fatalf("smtbench: starting stackdriver metrics exporter: %v", err)
		}
		defer exporter.StopMetricsExporter()
		defer exporter.Flush()
	}

	tree := merkle.New(memstore.New(), blake2b.New, merkle.H256{})
	observer := metrics.NewObserver()
	tree.SetObserver(observer)

	keys := make([]merkle.H256, *numKeys)
	for i := range keys {
		if _, err := rand.Read(keys[i][:]); err != nil {
			glog.Fatalf("smtbench: generating key %d: %v", i, err)
		}
	}

	start := time.Now()
	var updates, gets int
	for i, key := range keys {
		if float64(i%100)/100 < *readFraction && i > 0 {
			if _, err := tree.Get(key); err != nil {
				glog.Fatalf("smtbench: Get(%d): %v", i, err)
			}
			gets++
			continue
		}
		var value benchValue
		if _, err := rand.Read(value[:]); err != nil {
			glog.Fatalf("smtbench: generating value %d: %v", i, err)
		}
		if _, err := tree.Update(key, value); err != nil {
			glog.Fatalf("smtbench: Update(%d): %v", i, err)
		}
		updates++
	}
	elapsed := time.Since(start)

	fmt.Printf("%d updates, %d gets in %s (%.0f ops/sec)\n",
		updates, gets, elapsed, float64(updates+gets)/elapsed.Seconds())
}
