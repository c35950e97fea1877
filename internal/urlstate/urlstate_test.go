package urlstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/stream"
)

type navigation struct {
	fragment string
	replace  bool
}

func setup(t *testing.T) (*Service, *loop.Virtual, *[]navigation) {
	t.Helper()
	var navs []navigation
	v := loop.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := New(v, RouterFunc(func(fragment string, replace bool) {
		navs = append(navs, navigation{fragment, replace})
	}), Options{})
	return s, v, &navs
}

func TestParseFragment(t *testing.T) {
	tests := []struct {
		in   string
		want State
	}{
		{"", State{}},
		{"#1700000000000/1/0/0", State{TimelineState: "1700000000000/1/0/0"}},
		{"1700000000000/2/0/0//42", State{TimelineState: "1700000000000/2/0/0", SelectedItemID: 42}},
		{"//5", State{SelectedItemID: 5}},
		{"abc//x", State{TimelineState: "abc"}},
		{"abc//0", State{TimelineState: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFragment(tt.in))
		})
	}
}

func TestFragment(t *testing.T) {
	assert.Equal(t, "a/1/0/0", State{TimelineState: "a/1/0/0"}.Fragment())
	assert.Equal(t, "a/1/0/0//42", State{TimelineState: "a/1/0/0", SelectedItemID: 42}.Fragment())
	assert.Equal(t, "//7", State{SelectedItemID: 7}.Fragment())
}

func TestTimelineWritesAreDebounced(t *testing.T) {
	s, v, navs := setup(t)

	s.SetTimelineState("100/1/0/0")
	v.Advance(100 * time.Millisecond)
	s.SetTimelineState("200/1/0/0")
	v.Advance(249 * time.Millisecond)
	assert.Empty(t, *navs)
	v.Advance(time.Millisecond)
	assert.Equal(t, []navigation{{"200/1/0/0", true}}, *navs)
}

func TestSameStateWritesOnce(t *testing.T) {
	s, v, navs := setup(t)

	s.SetTimelineState("100/1/0/0")
	v.Advance(time.Second)
	s.SetTimelineState("100/1/0/0")
	v.Advance(time.Second)
	assert.Len(t, *navs, 1)

	s.SetSelectedItemID(42)
	v.Flush()
	s.SetSelectedItemID(42)
	v.Advance(time.Second)
	assert.Equal(t, []navigation{{"100/1/0/0", true}, {"100/1/0/0//42", false}}, *navs)
}

func TestSelectionPushesImmediatelyAndSupersedesReplace(t *testing.T) {
	s, v, navs := setup(t)

	s.SetTimelineState("100/1/0/0")
	v.Flush()
	s.SetSelectedItemID(42)
	v.Flush()
	assert.Equal(t, []navigation{{"100/1/0/0//42", false}}, *navs)

	v.Advance(time.Second)
	assert.Len(t, *navs, 1, "pending replace is dropped by the push")

	s.SetSelectedItemID(0)
	v.Flush()
	assert.Equal(t, navigation{"100/1/0/0", false}, (*navs)[1])
}

func TestFieldsMergeInsteadOfOverwriting(t *testing.T) {
	s, v, _ := setup(t)

	s.SetSelectedItemID(7)
	s.SetTimelineState("100/1/0/0")
	v.Advance(time.Second)

	last, ok := s.Current().Last()
	require.True(t, ok)
	assert.Equal(t, State{TimelineState: "100/1/0/0", SelectedItemID: 7}, last.Value)
	assert.Equal(t, stream.Local, last.Origin)
}

func TestInitFromURLIsExternalAndSilent(t *testing.T) {
	s, v, navs := setup(t)
	var got []stream.Update[State]
	s.Current().Subscribe(func(u stream.Update[State]) { got = append(got, u) })

	s.InitFromURL("#1700000000000/2/0/0//42")
	v.Advance(time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, stream.External, got[0].Origin)
	assert.Equal(t, State{TimelineState: "1700000000000/2/0/0", SelectedItemID: 42}, got[0].Value)
	assert.Empty(t, *navs)

	// Consumers echoing the loaded state back change nothing.
	s.SetSelectedItemID(42)
	s.SetTimelineState("1700000000000/2/0/0")
	v.Advance(time.Second)
	assert.Len(t, got, 1)
	assert.Empty(t, *navs)
}
