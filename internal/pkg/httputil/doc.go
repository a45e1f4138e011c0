// Package httputil holds the JSON response helpers shared by all API
// handlers, keeping status codes and error envelopes consistent.
package httputil
