package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/xyzplot/internal/axis"
)

const testPrompt = `{
  "3": {"class_type": "KSampler", "_meta": {"title": "KSampler"},
        "inputs": {"cfg": 7.0, "steps": 20, "sampler_name": "euler", "model": ["4", 0]}},
  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "v1-5.safetensors"}},
  "10": {"class_type": "SaveImage", "_meta": {"title": "Save"}, "inputs": {"filename_prefix": "xyz", "images": ["3", 0]}}
}`

func TestParseAndReferences(t *testing.T) {
	p, err := Parse([]byte(testPrompt))
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "4", "10"}, p.NodeIDs())

	refs := p.References()
	var names []string
	for _, r := range refs {
		names = append(names, r.String())
	}
	assert.Equal(t, []string{
		"#3::KSampler::cfg",
		"#3::KSampler::sampler_name",
		"#3::KSampler::steps",
		"#4::CheckpointLoaderSimple::ckpt_name",
		"#10::Save::filename_prefix",
	}, names)
}

func TestParseWrappedPrompt(t *testing.T) {
	p, err := Parse([]byte(`{"prompt": ` + testPrompt + `, "client_id": "abc"}`))
	require.NoError(t, err)
	assert.Len(t, p, 3)
}

func TestLookupDangling(t *testing.T) {
	p, err := Parse([]byte(testPrompt))
	require.NoError(t, err)

	require.NoError(t, p.Lookup(axis.InputReference{NodeID: "3", WidgetName: "cfg"}))

	err = p.Lookup(axis.InputReference{NodeID: "99", WidgetName: "cfg"})
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, "99", dangling.Ref.NodeID)

	err = p.Lookup(axis.InputReference{NodeID: "3", WidgetName: "denoise"})
	assert.True(t, errors.As(err, &dangling))
}

func TestCloneIsolatesSet(t *testing.T) {
	p, err := Parse([]byte(testPrompt))
	require.NoError(t, err)

	c := p.Clone()
	require.NoError(t, c.Set(axis.InputReference{NodeID: "3", WidgetName: "cfg"}, "8.5"))

	assert.Equal(t, "8.5", c["3"].Inputs["cfg"])
	assert.Equal(t, 7.0, p["3"].Inputs["cfg"])
}
