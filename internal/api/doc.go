// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs to submit a scrape job (rate limited per client).
//   - GET /v1/jobs and /v1/jobs/{job_id} for job state and records.
//   - POST /v1/jobs/{job_id}/cancel to stop a pending or running job.
//   - GET /v1/jobs/{job_id}/export?format=json|csv|table for results.
//   - GET /v1/jobs/{job_id}/events for the job's progress timeline.
package api
