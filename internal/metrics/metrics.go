package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes recorded by ScansTotal.
const (
	ResultProcessed    = "processed"
	ResultDuplicate    = "duplicate"
	ResultUnknownTag   = "unknown_tag"
	ResultEmptyPayload = "empty_payload"
	ResultError        = "error"
)

var (
	// ScansTotal counts tag presentations by processing outcome.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schooltrack_scans_total",
		Help: "Tag presentations handled by the poller, by outcome.",
	}, []string{"result"})

	// ReaderResets counts reset attempts against the physical reader.
	ReaderResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schooltrack_reader_resets_total",
		Help: "Reset attempts against the NFC reader.",
	})

	// ReaderBusy counts guard acquisitions that timed out.
	ReaderBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schooltrack_reader_busy_total",
		Help: "Reader guard acquisitions that timed out.",
	})

	// NotificationsDelivered counts events delivered to live subscribers.
	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schooltrack_notifications_delivered_total",
		Help: "Scan notifications delivered to websocket subscribers.",
	})

	// SubscribersDropped counts subscribers removed after a failed delivery.
	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schooltrack_subscribers_dropped_total",
		Help: "Websocket subscribers dropped after delivery failure.",
	})

	// Subscribers tracks currently connected websocket subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schooltrack_subscribers",
		Help: "Currently connected websocket subscribers.",
	})
)
