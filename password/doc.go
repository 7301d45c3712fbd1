// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format so parameters travel with the hash:
//
//	$argon2id$v=19$m=<memory KiB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters than the current
// configuration. The package never stores or logs plaintext.
package password
