package memguard

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"stockChipDip/internal/trace"
)

func TestMain(m *testing.M) {
	trace.SetLogger(nil)
	os.Exit(m.Run())
}

type fakeClearer struct {
	cleared int
}

func (f *fakeClearer) ClearMemory() { f.cleared++ }

func TestCheck_BelowLimitNoClear(t *testing.T) {
	c := &fakeClearer{}
	g := NewWithReader(1000, c, func() (uint64, error) { return 500, nil })
	g.Check(context.Background())
	assert.Equal(t, 0, c.cleared)
	assert.Equal(t, int64(0), g.Clears())
}

func TestCheck_AboveLimitClearsAndCounts(t *testing.T) {
	c := &fakeClearer{}
	g := NewWithReader(1000, c, func() (uint64, error) { return 2000, nil })
	g.Check(context.Background())
	g.Check(context.Background())
	assert.Equal(t, 2, c.cleared)
	assert.Equal(t, int64(2), g.Clears())
}

func TestCheck_ReaderErrorSkips(t *testing.T) {
	c := &fakeClearer{}
	g := NewWithReader(1000, c, func() (uint64, error) { return 0, errors.New("no proc") })
	g.Check(context.Background())
	assert.Equal(t, 0, c.cleared)
}

func TestCheck_NilAndZeroLimitAreNoops(t *testing.T) {
	var g *Guard
	g.Check(context.Background()) // nil 守卫可安全调用

	c := &fakeClearer{}
	NewWithReader(0, c, func() (uint64, error) { return 1, nil }).Check(context.Background())
	assert.Equal(t, 0, c.cleared)
}
