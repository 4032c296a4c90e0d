// Package httpapi exposes the docpipe services over a gin JSON API.
//
// Every response body carries a statusAPI field: "OK" on success and
// "ERROR" together with error_kind and message on failure. Error kinds map
// to HTTP statuses in one place (statusFor) so every handler reports
// failures the same way.
package httpapi
