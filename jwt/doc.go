// Package jwt mints and verifies the short-lived access tokens presented on
// every protected back-office call. Tokens carry the user id plus the role
// names and permission codes resolved at issuance; verification is fully
// stateless.
package jwt
