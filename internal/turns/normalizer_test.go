package turns

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNormalizer() *Normalizer {
	seq := 0
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewNormalizer(
		WithIDFunc(func() string {
			seq++
			return fmt.Sprintf("gen-%d", seq)
		}),
		WithClock(func() time.Time { return clock }),
	)
}

func TestAppendUserAlwaysAddsTurn(t *testing.T) {
	n := fixedNormalizer()

	histories := []History{
		nil,
		{{ID: "a", User: &Entry{Content: "hi"}}},
		{{ID: "a", User: &Entry{Content: "hi"}, Assistant: &Entry{Content: "hello"}}},
		{{ID: "a", Assistant: &Entry{Content: "orphan"}}},
	}

	for i, h := range histories {
		t.Run(fmt.Sprintf("history_%d", i), func(t *testing.T) {
			out := n.Append(h, Message{Role: RoleUser, Content: "next"})
			require.Len(t, out, len(h)+1)
			last := out[len(out)-1]
			require.NotNil(t, last.User)
			assert.Equal(t, "next", last.User.Content)
			assert.Nil(t, last.Assistant)
		})
	}
}

func TestAppendAssistantAttachesToMostRecentOpenTurn(t *testing.T) {
	n := fixedNormalizer()
	h := History{
		{ID: "t1", User: &Entry{Content: "first"}},
		{ID: "t2", User: &Entry{Content: "second"}, Assistant: &Entry{Content: "done"}},
		{ID: "t3", User: &Entry{Content: "third"}},
		{ID: "t4", Assistant: &Entry{Content: "stray"}},
	}

	out := n.Append(h, Message{Role: RoleAssistant, Content: "reply"})

	require.Len(t, out, len(h))
	require.NotNil(t, out[2].Assistant)
	assert.Equal(t, "reply", out[2].Assistant.Content)
	assert.Nil(t, out[0].Assistant, "older open turn must stay open")
	assert.Nil(t, h[2].Assistant, "input history must not be modified")
}

func TestAppendAssistantWithoutOpenTurn(t *testing.T) {
	n := fixedNormalizer()
	h := History{
		{ID: "t1", User: &Entry{Content: "q"}, Assistant: &Entry{Content: "a"}},
	}

	out := n.Append(h, Message{Role: RoleAssistant, Content: "unprompted"})

	require.Len(t, out, 2)
	assert.Equal(t, "gen-1", out[1].ID)
	assert.Nil(t, out[1].User)
	require.NotNil(t, out[1].Assistant)
	assert.Equal(t, "unprompted", out[1].Assistant.Content)
}

func TestAppendUsesSuppliedIDAndTimestamp(t *testing.T) {
	n := fixedNormalizer()
	ts := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	out := n.Append(nil, Message{ID: "client-id", Role: RoleUser, Content: "x", Timestamp: &ts})

	require.Len(t, out, 1)
	assert.Equal(t, "client-id", out[0].ID)
	assert.Equal(t, ts, out[0].User.Timestamp)

	out = n.Append(nil, Message{Role: RoleUser, Content: "y"})
	assert.Equal(t, "gen-1", out[0].ID)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), out[0].User.Timestamp)
}

func TestAppendIgnoresUnknownRole(t *testing.T) {
	n := fixedNormalizer()
	h := History{{ID: "t1", User: &Entry{Content: "q"}}}

	out := n.Append(h, Message{Role: "system", Content: "ignored"})

	assert.Equal(t, h, out)
}

func TestFromLegacyAlternating(t *testing.T) {
	n := fixedNormalizer()

	out := n.FromLegacy([]Message{
		{ID: "m1", Role: RoleUser, Content: "hello"},
		{ID: "m2", Role: RoleAssistant, Content: "hi there"},
		{ID: "m3", Role: RoleUser, Content: "how are you"},
	})

	require.Len(t, out, 2)
	assert.True(t, out[0].Complete())
	assert.Equal(t, "m1", out[0].ID)
	assert.Equal(t, "hi there", out[0].Assistant.Content)
	assert.Equal(t, "m3", out[1].ID)
	assert.NotNil(t, out[1].User)
	assert.Nil(t, out[1].Assistant)
}

func TestFromLegacySplitsUnmatched(t *testing.T) {
	n := fixedNormalizer()

	out := n.FromLegacy([]Message{
		{Role: RoleAssistant, Content: "greeting"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleUser, Content: "q2"},
		{Role: "system", Content: "dropped"},
		{Role: RoleAssistant, Content: "a2"},
	})

	require.Len(t, out, 4)
	assert.Nil(t, out[0].User)
	assert.Equal(t, "greeting", out[0].Assistant.Content)
	assert.Nil(t, out[1].Assistant)
	assert.Nil(t, out[2].Assistant, "a system message breaks the pairing")
	assert.Equal(t, "a2", out[3].Assistant.Content)
	assert.Equal(t, legacyID(0, Message{Role: RoleAssistant, Content: "greeting"}), out[0].ID)
	assert.NotEqual(t, out[1].ID, out[2].ID)
}

func TestLegacyIDsAreStableAcrossDecodes(t *testing.T) {
	raw := []byte(`[{"role":"user","content":"same"},{"role":"assistant","content":"a"},{"role":"user","content":"same"}]`)

	first, format, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, format)
	second, _, err := Decode(raw)
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.NotEqual(t, first[0].ID, first[1].ID, "position keeps repeated content apart")
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Format
		err  bool
	}{
		{"empty", ``, FormatEmpty, false},
		{"null", `null`, FormatEmpty, false},
		{"empty array", `[]`, FormatEmpty, false},
		{"turns", `[{"id":"t1","user":{"content":"x"}}]`, FormatTurns, false},
		{"legacy", `[{"role":"user","content":"x"}]`, FormatLegacy, false},
		{"object", `{"role":"user"}`, FormatEmpty, true},
		{"garbage", `[{`, FormatEmpty, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DetectFormat([]byte(tc.in))
			if tc.err {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHistoryDecodesLegacyAndEncodesTurns(t *testing.T) {
	var doc struct {
		Messages History `json:"messages"`
	}
	raw := `{"messages":[{"id":"m1","role":"user","content":"a"},{"id":"m2","role":"assistant","content":"b"}]}`

	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.Len(t, doc.Messages, 1)
	assert.True(t, doc.Messages[0].Complete())

	encoded, err := json.Marshal(doc.Messages)
	require.NoError(t, err)
	format, err := DetectFormat(encoded)
	require.NoError(t, err)
	assert.Equal(t, FormatTurns, format)
}

func TestNilHistoryEncodesAsEmptyList(t *testing.T) {
	var h History
	b, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}
