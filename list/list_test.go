package list

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertOrderedSortsByValue(t *testing.T) {
	l := New[string]()
	a := &Item[string]{Value: 30, Owner: "a"}
	b := &Item[string]{Value: 10, Owner: "b"}
	c := &Item[string]{Value: 20, Owner: "c"}

	l.InsertOrdered(a)
	l.InsertOrdered(b)
	l.InsertOrdered(c)

	require.Equal(t, []string{"b", "c", "a"}, l.Items())
	require.Equal(t, 3, l.Len())
}

func TestInsertOrderedSentinelValueIsConstantTime(t *testing.T) {
	l := New[string]()
	normal := &Item[string]{Value: 5, Owner: "normal"}
	indefinite := &Item[string]{Value: ValueMax, Owner: "indefinite"}

	l.InsertOrdered(indefinite)
	l.InsertOrdered(normal)

	require.Equal(t, []string{"normal", "indefinite"}, l.Items())
}

func TestAppendIsFIFOAtCursor(t *testing.T) {
	l := New[int]()
	for i := 0; i < 3; i++ {
		l.Append(&Item[int]{Owner: i})
	}
	require.Equal(t, []int{0, 1, 2}, l.Items())
}

func TestRemoveUnlinksAndClearsContainer(t *testing.T) {
	l := New[string]()
	a := &Item[string]{Value: 1, Owner: "a"}
	b := &Item[string]{Value: 2, Owner: "b"}
	l.InsertOrdered(a)
	l.InsertOrdered(b)

	n := l.Remove(a)
	require.Equal(t, 1, n)
	require.False(t, a.Linked())
	require.Nil(t, a.List())
	require.Equal(t, []string{"b"}, l.Items())
}

func TestRemoveStepsCursorBack(t *testing.T) {
	l := New[int]()
	a := &Item[int]{Owner: 1}
	b := &Item[int]{Owner: 2}
	l.Append(a)
	l.Append(b)

	// advance cursor onto a
	owner := l.Advance()
	require.Equal(t, 1, owner) // cursor starts at sentinel, first advance lands on a

	l.Remove(a)
	// cursor should now resolve safely without panicking
	require.Equal(t, 2, l.Advance())
}

func TestAdvanceRoundRobinsAmongEquals(t *testing.T) {
	l := New[string]()
	a := &Item[string]{Owner: "a"}
	b := &Item[string]{Owner: "b"}
	c := &Item[string]{Owner: "c"}
	l.Append(a)
	l.Append(b)
	l.Append(c)

	var seen []string
	for i := 0; i < 6; i++ {
		seen = append(seen, l.Advance())
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, seen)
}

func TestInsertAlreadyLinkedPanics(t *testing.T) {
	l := New[int]()
	a := &Item[int]{Owner: 1}
	l.Append(a)
	require.Panics(t, func() { l.Append(a) })
}

func TestEmptyAndHead(t *testing.T) {
	l := New[int]()
	require.True(t, l.Empty())
	require.Nil(t, l.Head())

	a := &Item[int]{Owner: 42}
	l.Append(a)
	require.False(t, l.Empty())
	require.Equal(t, a, l.Head())
}
