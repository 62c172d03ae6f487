// Package srt formats recognized segments as SubRip caption blocks.
//
// Timestamps use truncation rather than rounding, so a value written by
// FormatTime and read back by ParseTime equals the input cut to whole
// milliseconds.
package srt
