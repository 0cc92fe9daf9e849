package foldername

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type dateField struct {
	token  string
	format func(time.Time) string
}

// longest tokens first so "yyyy" wins over "yy" and "MM" over "M"
var dateFields = []dateField{
	{"yyyy", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"yy", func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) }},
	{"MM", func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) }},
	{"dd", func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) }},
	{"HH", func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) }},
	{"mm", func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) }},
	{"ss", func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) }},
	{"M", func(t time.Time) string { return strconv.Itoa(int(t.Month())) }},
	{"d", func(t time.Time) string { return strconv.Itoa(t.Day()) }},
	{"H", func(t time.Time) string { return strconv.Itoa(t.Hour()) }},
	{"m", func(t time.Time) string { return strconv.Itoa(t.Minute()) }},
	{"s", func(t time.Time) string { return strconv.Itoa(t.Second()) }},
}

// FormatDate renders a SaveImage-style date pattern (yyMMdd,
// yyyy-MM-dd_HH-mm-ss, ...). Unrecognized characters pass through.
func FormatDate(pattern string, now time.Time) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, f := range dateFields {
			if strings.HasPrefix(pattern[i:], f.token) {
				b.WriteString(f.format(now))
				i += len(f.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}
