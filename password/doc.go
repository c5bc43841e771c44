// Package password hashes and verifies user secrets with argon2id and
// checks registration-time password policy.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so
// the engine can re-hash after a successful login.
//
// This package never stores, logs or returns plaintext.
package password
