// Copyright 2025 go-clops Authors
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

package cpudev

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	dispatches    *prometheus.CounterVec
	workGroups    *prometheus.CounterVec
	kernelSeconds *prometheus.HistogramVec
	transferBytes *prometheus.CounterVec
	liveBuffers   prometheus.Gauge
}

// newMetrics creates the device metrics and registers them on reg. A nil
// reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clo",
			Subsystem: "cpudev",
			Name:      "dispatches_total",
			Help:      "Kernel dispatches executed, by kernel.",
		}, []string{"kernel"}),
		workGroups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clo",
			Subsystem: "cpudev",
			Name:      "work_groups_total",
			Help:      "Work-groups executed, by kernel.",
		}, []string{"kernel"}),
		kernelSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clo",
			Subsystem: "cpudev",
			Name:      "kernel_duration_seconds",
			Help:      "Wall time of kernel dispatches, by kernel.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"kernel"}),
		transferBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clo",
			Subsystem: "cpudev",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved by buffer commands, by direction.",
		}, []string{"direction"}),
		liveBuffers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "clo",
			Subsystem: "cpudev",
			Name:      "live_buffers",
			Help:      "Device buffers allocated and not yet released.",
		}),
	}
}

func (m *metrics) observeDispatch(kernel string, groups int, d time.Duration) {
	m.dispatches.WithLabelValues(kernel).Inc()
	m.workGroups.WithLabelValues(kernel).Add(float64(groups))
	m.kernelSeconds.WithLabelValues(kernel).Observe(d.Seconds())
}
