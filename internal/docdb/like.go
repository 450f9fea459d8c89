package docdb

// Like reports whether text matches an SQL LIKE pattern: '%' matches any run
// of bytes including the empty one, '_' matches exactly one byte and every
// other byte matches itself. Matching is case-sensitive.
//
// Non-string operands never match.
func Like(text, pattern any) bool {
	t, ok := text.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	return like(t, p)
}

func like(text, pattern string) bool {
	ti, pi := 0, 0
	// Position of the last '%' seen in pattern and of the text byte it is
	// currently absorbing up to.
	star, mark := -1, 0
	for ti < len(text) {
		switch {
		case pi < len(pattern) && pattern[pi] == '%':
			star = pi
			mark = ti
			pi++
		case pi < len(pattern) && (pattern[pi] == '_' || pattern[pi] == text[ti]):
			ti++
			pi++
		case star != -1:
			mark++
			ti = mark
			pi = star + 1
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}
