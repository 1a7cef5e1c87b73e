// Package api exposes a Service over HTTP.
//
// Routes:
//
//	POST /v1/analyses            multipart upload (field "firmware"), 202 with the job id
//	GET  /v1/status              outstanding work and capacity
//	GET  /v1/jobs                ?status=&limit=
//	GET  /v1/jobs/{id}
//	GET  /v1/jobs/{id}/result
//	GET  /v1/events              websocket stream of JSON events, ?job= filters
//
// A full executor answers 503 with Retry-After; callers resubmit later.
// The handler speaks HTTP/2 over cleartext as well as HTTP/1.1.
package api
