package utils

// FingerprintQuery identifies a rewritten query text for a given dialect.
// Two texts only share a fingerprint if they are byte-identical.
func FingerprintQuery(dialect, text string) uint64 {
	return Mix64(U64(dialect), U64(text))
}
