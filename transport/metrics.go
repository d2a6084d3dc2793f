package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_duplex_frames_total",
			Help: "Frames moved by duplex pumps",
		},
		[]string{"direction"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_duplex_frame_bytes_total",
			Help: "Frame body bytes moved by duplex pumps",
		},
		[]string{"direction"},
	)
	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_duplex_stream_errors_total",
			Help: "Stream failures that terminated a pump direction",
		},
		[]string{"direction"},
	)
	activePumps = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rpc_duplex_active_pumps",
		Help: "Duplex pumps currently running",
	})
)

func init() {
	prometheus.MustRegister(framesTotal, bytesTotal, streamErrors, activePumps)
}

func observeFrame(direction string, n int) {
	framesTotal.WithLabelValues(direction).Inc()
	bytesTotal.WithLabelValues(direction).Add(float64(n))
}
