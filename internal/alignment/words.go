package alignment

// Word is a whitespace-delimited token with the time range it occupies in
// the narration audio. Start comes from the word's first character, End from
// its last.
type Word struct {
	Text  string
	Start float64
	End   float64
}

// Words converts the character alignment into word-level timing. Whitespace
// characters flush the current buffer and never produce words themselves; a
// trailing non-empty buffer is flushed as the final word.
func Words(a *Alignment) ([]Word, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	words := make([]Word, 0, a.Len()/5+1)
	var buf []byte
	var start float64
	var end float64

	flush := func() {
		if len(buf) == 0 {
			return
		}
		words = append(words, Word{Text: string(buf), Start: start, End: end})
		buf = buf[:0]
	}

	for i, ch := range a.Characters {
		if isWhitespace(ch) {
			flush()
			continue
		}
		if len(buf) == 0 {
			start = a.CharacterStartTimes[i]
		}
		buf = append(buf, ch...)
		end = a.CharacterEndTimes[i]
	}
	flush()

	return words, nil
}

func isWhitespace(ch string) bool {
	switch ch {
	case " ", "\n", "\t", "\r":
		return true
	default:
		return false
	}
}
