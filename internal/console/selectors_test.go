package console

import (
	"testing"

	"github.com/0xPuncker/chronos-console/internal/testutil"
	"github.com/0xPuncker/chronos-console/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestSelectVersion(t *testing.T) {
	v1 := testutil.NewQueryVersion(7, 1)
	v2 := testutil.NewQueryVersion(7, 2)
	v3 := testutil.NewQueryVersion(7, 3)
	versions := []*types.Version{v1, v2, v3}

	tests := []struct {
		name     string
		selected *types.Version
		versions []*types.Version
		expected *types.Version
	}{
		{"latest by default", nil, versions, v3},
		{"explicit selection wins", v1, versions, v1},
		{"explicit selection regardless of order", v3, []*types.Version{v3, v2, v1}, v3},
		{"empty history", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.expected, SelectVersion(tt.selected, tt.versions))
		})
	}
}

func TestFindRoot(t *testing.T) {
	a := testutil.NewJob(1, "A", nil)
	b := testutil.NewJob(2, "B", testutil.Int64(1))
	c := testutil.NewJob(3, "C", testutil.Int64(2))
	chain := map[int64]*types.Job{1: a, 2: b, 3: c}

	cycleA := testutil.NewJob(10, "cycle A", testutil.Int64(11))
	cycleB := testutil.NewJob(11, "cycle B", testutil.Int64(10))
	cycle := map[int64]*types.Job{10: cycleA, 11: cycleB}

	self := testutil.NewJob(20, "self", testutil.Int64(20))
	orphan := testutil.NewJob(30, "orphan", testutil.Int64(99))

	tests := []struct {
		name     string
		id       int64
		jobs     map[int64]*types.Job
		expected *types.Job
	}{
		{"chain resolves to the top", 3, chain, a},
		{"middle of chain", 2, chain, a},
		{"root is its own root", 1, chain, a},
		{"cycle terminates", 10, cycle, cycleB},
		{"cycle from the other side", 11, cycle, cycleA},
		{"self reference", 20, map[int64]*types.Job{20: self}, self},
		{"missing parent stops the walk", 30, map[int64]*types.Job{30: orphan}, orphan},
		{"unknown job", 404, chain, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.expected, FindRoot(tt.id, tt.jobs))
		})
	}
}
