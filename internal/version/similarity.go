package version

// MaxSimilarity is the score of two identical versions.
const MaxSimilarity = 4

// mismatchScore[i] is the score when the first differing component is i.
var mismatchScore = [4]int{0, 2, 2, 3}

// Similarity scores how closely a matches b by the longest common component
// prefix: 4 when identical, 3 when only Revision differs, 2 when Build or
// Minor is the first difference and 0 when Major differs. The size of a
// difference does not matter. Either side nil scores 0.
func Similarity(a, b *Version) int {
	if a == nil || b == nil {
		return 0
	}
	for i := range 4 {
		ac, aok := a.Component(i)
		bc, bok := b.Component(i)
		if aok != bok || ac != bc {
			return mismatchScore[i]
		}
	}
	return MaxSimilarity
}
