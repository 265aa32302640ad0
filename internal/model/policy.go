package model

// IsAnswerGrounded reports whether the answer carries at least one citation.
func IsAnswerGrounded(a *Answer) bool {
	return len(a.Citations) > 0
}

// HasMinimumCitationFields reports whether every citation names a document
// and a positive page number.
func HasMinimumCitationFields(a *Answer) bool {
	for _, c := range a.Citations {
		if c.DocID == "" {
			return false
		}
		if c.Page <= 0 {
			return false
		}
	}
	return true
}
