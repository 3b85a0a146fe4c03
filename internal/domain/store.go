package domain

// Store is the key-value persistence port: unit preference, the selected
// course, and the weather cache slot all live behind it. Implementations
// scope keys under a private namespace so unrelated stored data cannot
// collide. Reads are best-effort; a missing key is not an error.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}
