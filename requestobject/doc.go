// Package requestobject validates signed authentication request objects
// (JWTs carrying the authorization request parameters) and feeds their
// identifying value into a replay guard.
package requestobject
