// Package github is the event source and enrichment client for the GitHub
// REST API (plus one GraphQL query for review threads).
//
// Raw activity events are decoded into the sealed Payload union. Callers
// route a payload to a typed Handler with Dispatch, so every event kind has
// exactly one handler method.
//
// Every request waits on a client-side rate limiter and charges one unit to
// the configured Meter. The server's X-RateLimit-Remaining header is
// reported back through Meter.Observe.
//
// A 404 maps to ErrNotFound; callers treat it as "the entity is gone".
// Every other failure is transient from the caller's point of view.
package github
