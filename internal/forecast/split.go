package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split shuffles row indices with seed and holds out ceil(ratio*n) of them.
// Both sides are sorted and non-empty.
func Split(n int, ratio float64, seed int64) (train, test []int, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %g", ratio)
	}
	nTest := int(math.Ceil(ratio * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("cannot split %d rows with test ratio %g", n, ratio)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test, nil
}
