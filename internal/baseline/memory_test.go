package baseline

import (
	"context"
	"regexp"
	"slices"
	"sync"
	"testing"

	"github.com/papapumpkin/parsec/internal/schedule"
)

func TestMemoryStore_ConcurrentInsert(t *testing.T) {
	t.Parallel()
	m := newManager(t)
	const n = 20
	var wg sync.WaitGroup
	versions := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := m.Create(context.Background(), []schedule.Task{costed("A", 1)}, CreateRequest{Name: "parallel"})
			if err != nil {
				t.Error(err)
				return
			}
			versions[i] = b.Version
		}()
	}
	wg.Wait()
	slices.Sort(versions)
	if len(slices.Compact(versions)) != n {
		t.Errorf("versions not unique: %v", versions)
	}
	pattern := regexp.MustCompile(`^BL_\d{8}_\d{6}_\d+$`)
	for _, v := range versions {
		if !pattern.MatchString(v) {
			t.Errorf("version %q does not match %s", v, pattern)
		}
	}
}
