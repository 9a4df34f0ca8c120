package merkle

import (
	"fmt"
	"testing"
)

func BenchmarkBuildStepTree(b *testing.B) {
	for _, size := range []int{10, 50, 100, 200} {
		b.Run(fmt.Sprintf("Steps_%d", size), func(b *testing.B) {
			steps := createTestSteps(size)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = BuildStepTree(steps)
			}
		})
	}
}

func BenchmarkGenerateProof(b *testing.B) {
	for _, size := range []int{10, 50, 100, 200} {
		tree, _ := BuildStepTree(createTestSteps(size))
		b.Run(fmt.Sprintf("Steps_%d", size), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = tree.GenerateProof(i % size)
			}
		})
	}
}
