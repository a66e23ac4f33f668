package models

import "strings"

// APT types are four-letter codes, one letter from each axis:
// L/S, A/R, E/M, F/C.
var aptAxes = [4]string{"LS", "AR", "EM", "FC"}

// IsValidAPTType reports whether code is one of the 16 APT types.
func IsValidAPTType(code string) bool {
	if len(code) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if !strings.ContainsRune(aptAxes[i], rune(code[i])) {
			return false
		}
	}
	return true
}

// APTTypes lists all 16 codes in a stable order.
func APTTypes() []string {
	var out []string
	var walk func(prefix string, axis int)
	walk = func(prefix string, axis int) {
		if axis == len(aptAxes) {
			out = append(out, prefix)
			return
		}
		for _, c := range aptAxes[axis] {
			walk(prefix+string(c), axis+1)
		}
	}
	walk("", 0)
	return out
}
