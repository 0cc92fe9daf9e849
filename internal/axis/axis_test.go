package axis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"semicolons", "6.5; 7.0; 7.5", []string{"6.5", "7.0", "7.5"}},
		{"drops empties", " ;a;; b ; ", []string{"a", "b"}},
		{"keeps duplicates and order", "b;a;b", []string{"b", "a", "b"}},
		{"comma fallback", "euler, heun", []string{"euler", "heun"}},
		{"semicolon wins over comma", "a,b;c", []string{"a,b", "c"}},
		{"single token", "  KSampler  ", []string{"KSampler"}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseValues(tt.raw))
		})
	}
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("#3::KSampler::cfg")
	require.NoError(t, err)
	assert.Equal(t, &InputReference{NodeID: "3", NodeTitle: "KSampler", WidgetName: "cfg"}, ref)
	assert.Equal(t, "#3 KSampler", ref.Key())
	assert.Equal(t, "#3::KSampler::cfg", ref.String())

	ref, err = ParseReference("12::Load Checkpoint::ckpt_name")
	require.NoError(t, err)
	assert.Equal(t, "12", ref.NodeID)

	ref, err = ParseReference("none")
	require.NoError(t, err)
	assert.Nil(t, ref)

	_, err = ParseReference("#3::cfg")
	assert.ErrorIs(t, err, ErrInvalidAxisSpec)
}

func TestResolve_ZInactive(t *testing.T) {
	set, err := Resolve(
		Spec{Reference: "#3::KSampler::cfg", Values: "1;2;3"},
		Spec{Reference: "#3::KSampler::steps", Values: "A;B"},
		Spec{Reference: "none", Values: ""},
	)
	require.NoError(t, err)
	assert.False(t, set.HasZ())
	assert.Equal(t, 1, set.ZSlots())
	assert.Len(t, set.Axes(), 2)
	assert.Equal(t, []string{"1", "2", "3"}, set.X.Values)
}

func TestResolve_ZReferenceWithoutValuesIsInactive(t *testing.T) {
	set, err := Resolve(
		Spec{Reference: "#3::KSampler::cfg", Values: "1"},
		Spec{Reference: "#3::KSampler::steps", Values: "2"},
		Spec{Reference: "#3::KSampler::sampler_name", Values: " ; "},
	)
	require.NoError(t, err)
	assert.Nil(t, set.Z)
}

func TestResolve_Errors(t *testing.T) {
	_, err := Resolve(Spec{Reference: "#1::A::a", Values: ""}, Spec{Reference: "#1::A::b", Values: "1"}, Spec{})
	assert.ErrorIs(t, err, ErrInvalidAxisSpec)

	_, err = Resolve(Spec{Reference: "#1::A::a", Values: "1"}, Spec{Reference: "none", Values: "1"}, Spec{})
	assert.ErrorIs(t, err, ErrInvalidAxisSpec)

	_, err = Resolve(Spec{Reference: "#1::A::a", Values: "1"}, Spec{Reference: "#1::A::b", Values: "1"}, Spec{Reference: "none", Values: "x"})
	assert.ErrorIs(t, err, ErrValueWithoutReference)
}
