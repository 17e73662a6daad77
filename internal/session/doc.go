// Package session persists the logged-in user between CLI invocations.
//
// The store keeps two keys, the opaque bearer token ("authToken") and the
// username ("username"), in a Pebble database under the configured data
// directory. A Store satisfies the token source interfaces of the api and
// connection packages, so the token is read fresh on every request and on
// every connection attempt.
package session
