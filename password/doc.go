// Package password implements credential hashing and verification with Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Hasher] also verifies bcrypt hashes carried over from older identity stores and
// reports them through [Hasher.NeedsRehash] so the caller can re-hash on the next
// successful login. The same applies to argon2id hashes with weaker parameters.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other portalauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
