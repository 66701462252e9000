// Package es256 implements ECDSA over the NIST P-256 curve with SHA-256,
// as used by the ES256 JWS algorithm (RFC 7518, section 3.4).
//
// Signatures are produced with deterministic nonces (RFC 6979), so the same
// key and message always yield the same signature, and the s component is
// canonicalized to the lower half of the group order. Signatures are
// represented in the fixed 64 byte r||s form used by JWS, not ASN.1.
package es256
