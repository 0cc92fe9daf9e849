// Package foldername expands output folder templates such as
//
//	%date:yyMMdd%_X_%inputx_node_title%_%inputx_widget_name%
//
// into a filesystem-safe folder name.
package foldername

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AaronLay10/xyzplot/internal/axis"
)

// DefaultTemplate is used when the configured template is blank.
const DefaultTemplate = "%date:yyMMdd%_X_%inputx_node_title%_%inputx_widget_name%_Y_%inputy_node_title%_%inputy_widget_name%_Z_%inputz_node_title%_%inputz_widget_name%"

// Fallback is the folder name used when expansion leaves nothing behind.
const Fallback = "xyz_plot"

var (
	dateToken     = regexp.MustCompile(`%date:([^%]+)%`)
	unsafeChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]+`)
	whitespace    = regexp.MustCompile(`\s+`)
	underscoreRun = regexp.MustCompile(`_+`)
	zTail         = regexp.MustCompile(`(?:^|_)Z_(?:%inputz_(?:node_title|widget_name)%|[_\s])*$`)
)

// canonical Z block, removed as a whole when Z is inactive; zTail then drops
// a trailing literal _Z_ segment left in the template
var zBlocks = []string{
	"_Z_%inputz_node_title%_%inputz_widget_name%",
	"Z_%inputz_node_title%_%inputz_widget_name%",
}

// Refs carries the resolved references of the three axes; nil means inactive.
type Refs struct {
	X, Y, Z *axis.InputReference
}

// RefsFromSet builds Refs from a resolved axis set.
func RefsFromSet(set *axis.Set) Refs {
	refs := Refs{X: &set.X.Ref, Y: &set.Y.Ref}
	if set.Z != nil {
		refs.Z = &set.Z.Ref
	}
	return refs
}

// Expand substitutes date and input tokens and sanitizes the result.
func Expand(template string, refs Refs, now time.Time) string {
	raw := strings.TrimSpace(template)
	if raw == "" {
		raw = DefaultTemplate
	}
	if refs.Z == nil {
		for _, block := range zBlocks {
			raw = strings.ReplaceAll(raw, block, "")
		}
		raw = zTail.ReplaceAllString(raw, "")
	}

	out := dateToken.ReplaceAllStringFunc(raw, func(m string) string {
		pattern := strings.TrimSpace(dateToken.FindStringSubmatch(m)[1])
		if pattern == "" {
			return ""
		}
		return FormatDate(pattern, now)
	})

	out = strings.NewReplacer(
		"%year%", fmt.Sprintf("%04d", now.Year()),
		"%month%", fmt.Sprintf("%02d", int(now.Month())),
		"%day%", fmt.Sprintf("%02d", now.Day()),
		"%hour%", fmt.Sprintf("%02d", now.Hour()),
		"%minute%", fmt.Sprintf("%02d", now.Minute()),
		"%second%", fmt.Sprintf("%02d", now.Second()),
	).Replace(out)

	out = strings.NewReplacer(
		"%inputx_node_title%", component(refs.X, titleOf),
		"%inputx_widget_name%", component(refs.X, widgetOf),
		"%inputy_node_title%", component(refs.Y, titleOf),
		"%inputy_widget_name%", component(refs.Y, widgetOf),
		"%inputz_node_title%", component(refs.Z, titleOf),
		"%inputz_widget_name%", component(refs.Z, widgetOf),
	).Replace(out)

	out = Sanitize(out)
	if out == "" {
		return Fallback
	}
	return out
}

// Sanitize reduces a string to a single safe path component: no separators,
// no control characters, whitespace and underscore runs collapsed.
func Sanitize(value string) string {
	text := strings.TrimSpace(value)
	text = unsafeChars.ReplaceAllString(text, "_")
	text = whitespace.ReplaceAllString(text, "_")
	text = strings.ReplaceAll(text, "..", "")
	text = underscoreRun.ReplaceAllString(text, "_")
	return strings.Trim(text, "_. ")
}

func titleOf(r *axis.InputReference) string  { return r.NodeTitle }
func widgetOf(r *axis.InputReference) string { return r.WidgetName }

func component(ref *axis.InputReference, field func(*axis.InputReference) string) string {
	if ref == nil {
		return ""
	}
	return Sanitize(field(ref))
}
