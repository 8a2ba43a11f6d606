// Package webhook accepts ISAR inspection events over signed HTTP POSTs and
// publishes them on the event bus.
//
// Each endpoint binds a path to one bus topic. Bodies are verified with
// HMAC-SHA256 against a pre-shared secret before they are decoded.
//
// # Configuration
//
//	webhooks:
//	  listen: "127.0.0.1:8091"
//	  endpoints:
//	    - path: /isar/inspection-result
//	      topic: isar.inspection_result
//	      secret: ${ISAR_WEBHOOK_SECRET}
//	      signature_header: X-Signature-256
//	      max_body_size: 1MB
//
// # Request Flow
//
//  1. Body size checked (413 if too large)
//  2. Signature verified in constant time (403 on any mismatch, no details)
//  3. Body decoded and validated for the endpoint's topic (400)
//  4. Body published on the bus (503 if no consumer takes it in time)
//  5. 202 Accepted with the bus event_id and inspection_id
package webhook
