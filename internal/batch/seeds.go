package batch

import (
	"math/rand/v2"
	"time"

	"geolift/ports"
)

// FixedSeeds replays an explicit list of seeds, cycling when the batch is
// longer than the list.
type FixedSeeds []int64

func (f FixedSeeds) Seed(i int) int64 {
	if len(f) == 0 {
		return int64(i)
	}
	return f[i%len(f)]
}

// SequentialSeeds hands out Base, Base+1, ...
type SequentialSeeds struct {
	Base int64
}

func (s SequentialSeeds) Seed(i int) int64 { return s.Base + int64(i) }

// RandomSeeds derives well-spread seeds from a base drawn once at
// construction, so a batch can still be replayed from Base.
type RandomSeeds struct {
	Base uint64
}

// NewRandomSeeds draws a fresh base.
func NewRandomSeeds() RandomSeeds {
	return RandomSeeds{Base: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)).Uint64()}
}

func (r RandomSeeds) Seed(i int) int64 {
	// splitmix64 finalizer over base + i
	z := r.Base + uint64(i)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z >> 1)
}

var (
	_ ports.SeedSource = FixedSeeds(nil)
	_ ports.SeedSource = SequentialSeeds{}
	_ ports.SeedSource = RandomSeeds{}
)
