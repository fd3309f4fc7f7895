// Package metrics defines the custom Prometheus metrics of the CRM API. It is
// the single source of truth for metric names, labels and help strings.
//
// Metrics are registered with the default registry on package init through
// promauto; HTTP request metrics come from echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crm"

// ── Customer metrics ─────────────────────────────────────────────────────────

// CustomersCreatedTotal counts customers created through the API.
var CustomersCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "customers_created_total",
		Help:      "Total number of customers created.",
	},
)

// CustomersDeletedTotal counts customers deleted through the API.
var CustomersDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "customers_deleted_total",
		Help:      "Total number of customers deleted.",
	},
)

// PhotoUploadsTotal counts photo uploads.
// Label:
//   - result: "stored", "rejected_type", "too_large" or "error"
var PhotoUploadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "photo_uploads_total",
		Help:      "Total number of customer photo uploads, by result.",
	},
	[]string{"result"},
)

// ── User metrics ─────────────────────────────────────────────────────────────

// AdminStatusChangesTotal counts set-admin-status calls that succeeded.
// Label:
//   - is_admin: the value that was set ("true" or "false")
var AdminStatusChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_status_changes_total",
		Help:      "Total number of admin status changes, by resulting value.",
	},
	[]string{"is_admin"},
)

// AuthLoginsTotal counts login attempts.
// Labels:
//   - method: "password", "google" or "registration"
//   - result: "success" or "failure"
var AuthLoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_logins_total",
		Help:      "Total number of login attempts, by method and result.",
	},
	[]string{"method", "result"},
)

// ── Audit event metrics ──────────────────────────────────────────────────────

// AuditEventsTotal counts audit events handled by the dispatcher.
// Label:
//   - result: "delivered", "failed" or "dropped"
var AuditEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events, by delivery result.",
	},
	[]string{"result"},
)

// AuditQueueDepth tracks events waiting in each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
