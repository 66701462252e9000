// Package jwt provides ES256 JSON Web Token (JWT) encoding and verification.
//
// Tokens are produced in JWS compact serialization:
//
//	BASE64URL(header) "." BASE64URL(claims) "." BASE64URL(r || s)
//
// The header is always {"alg":"ES256","typ":"JWT"}, optionally followed by "kid".
// Claims are serialized in insertion order with compact separators, so the
// output is byte-for-byte reproducible for the same claims and key.
//
// The package provides:
//   - Encode and DecodeAndVerify primitives over es256 keys
//   - ParseUnverified for inspecting tokens before the key is known
//   - Provider, a configurable signer and parser with key rotation by "kid"
//   - KeySet implementations backed by static keys or a remote JWKS URL
//
// Claim semantics (exp, nbf, aud, iss) are not validated; callers inspect
// the returned claims.
package jwt
