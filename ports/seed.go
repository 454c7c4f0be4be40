package ports

// SeedSource supplies the seed for the i-th run of a batch. Implementations
// must return the same seed for the same index on every call so a batch
// can be replayed.
type SeedSource interface {
	Seed(index int) int64
}
