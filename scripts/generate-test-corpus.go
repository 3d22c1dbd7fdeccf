//go:build ignore

// Package main generates a synthetic sample corpus for exercising the
// similarity analytics end to end.
// Usage: go run scripts/generate-test-corpus.go -families 20 -variants 5 -output testdata/corpus
//
// Each family is one base blob plus a few lightly mutated variants, so
// an ingest + compare + group run over the output should cluster the
// variants back into their families.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numFamilies = flag.Int("families", 20, "Number of sample families to generate")
	numVariants = flag.Int("variants", 5, "Variants per family, including the base")
	sampleSize  = flag.Int("size", 16384, "Size of each sample in bytes")
	outputDir   = flag.String("output", "testdata/corpus", "Output directory")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")

	// mutationRate is the fraction of bytes flipped per variant. Small
	// enough that variants stay well above any similarity threshold.
	mutationRate = flag.Float64("mutation", 0.02, "Fraction of bytes mutated per variant")
)

func main() {
	flag.Parse()

	if *sampleSize < 4096 {
		fmt.Fprintln(os.Stderr, "size must be at least 4096 bytes (ssdeep minimum input)")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	written := 0

	for family := 0; family < *numFamilies; family++ {
		base := make([]byte, *sampleSize)
		rng.Read(base)

		for variant := 0; variant < *numVariants; variant++ {
			data := mutate(rng, base, *mutationRate, variant)
			name := fmt.Sprintf("family%03d_variant%02d.bin", family, variant)
			path := filepath.Join(*outputDir, name)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
				os.Exit(1)
			}
			written++
		}
	}

	fmt.Printf("Generated %d samples in %d families under %s\n",
		written, *numFamilies, *outputDir)
}

// mutate returns a copy of base with a fraction of its bytes flipped.
// Variant 0 is the untouched base.
func mutate(rng *rand.Rand, base []byte, rate float64, variant int) []byte {
	data := make([]byte, len(base))
	copy(data, base)
	if variant == 0 {
		return data
	}

	flips := int(float64(len(data)) * rate * float64(variant))
	for i := 0; i < flips; i++ {
		data[rng.Intn(len(data))] = byte(rng.Intn(256))
	}
	return data
}
