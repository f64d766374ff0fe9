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

// Package metrics instruments a merkle.SparseMerkleTree with Prometheus
// counters/histograms and OpenCensus measures, wired in as a
// merkle.Observer.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/smtree/smt/merkle"
)

var (
	updatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smt",
		Name:      "updates_total",
		Help:      "Number of SparseMerkleTree.Update calls observed.",
	})
	getsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smt",
		Name:      "gets_total",
		Help:      "Number of SparseMerkleTree.Get calls observed, by whether the key was found.",
	}, []string{"found"})
	updateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smt",
		Name:      "update_latency_seconds",
		Help:      "Wall-clock time between consecutive Update observations, as a proxy for update rate.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(updatesTotal, getsTotal, updateLatency)
}

// OpenCensus measures, exported for operators who run an OpenCensus
// pipeline (e.g. the Stackdriver exporter wired up in cmd/smtbench)
// instead of, or alongside, Prometheus scraping.
var (
	MUpdates = stats.Int64("smt/updates", "Number of tree updates", stats.UnitDimensionless)
	MGets    = stats.Int64("smt/gets", "Number of tree reads", stats.UnitDimensionless)

	KeyFound, _ = tag.NewKey("found")

	UpdatesView = &view.View{
		Name:        "smt/updates_total",
		Measure:     MUpdates,
		Description: "Running count of tree updates",
		Aggregation: view.Count(),
	}
	GetsView = &view.View{
		Name:        "smt/gets_total",
		Measure:     MGets,
		Description: "Running count of tree reads, broken down by hit/miss",
		TagKeys:     []tag.Key{KeyFound},
		Aggregation: view.Count(),
	}
)

// Register installs the OpenCensus views. Call once at process startup;
// a no-op if called more than once since view.Register tolerates
// re-registering identical views.
func Register() error {
	return view.Register(UpdatesView, GetsView)
}

// Observer implements merkle.Observer, recording Prometheus and
// OpenCensus measurements for every tree operation it sees.
type Observer struct {
	lastUpdate time.Time
}

// NewObserver returns a ready-to-use Observer. Attach it to a tree with
// (*merkle.SparseMerkleTree).SetObserver.
func NewObserver() *Observer {
	return &Observer{}
}

func (o *Observer) OnUpdate(key, newRoot merkle.H256) {
	updatesTotal.Inc()
	now := time.Now()
	if !o.lastUpdate.IsZero() {
		updateLatency.Observe(now.Sub(o.lastUpdate).Seconds())
	}
	o.lastUpdate = now

	stats.Record(context.Background(), MUpdates.M(1))
}

func (o *Observer) OnGet(key merkle.H256, found bool) {
	label := "false"
	if found {
		label = "true"
	}
	getsTotal.WithLabelValues(label).Inc()

	ctx, err := tag.New(context.Background(), tag.Insert(KeyFound, label))
	if err != nil {
		ctx = context.Background()
	}
	stats.Record(ctx, MGets.M(1))
}
