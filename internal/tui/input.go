package tui

import "unicode/utf8"

// maxInputLen is the maximum number of runes allowed in the message input.
const maxInputLen = 2000

// editRune processes a keystroke for inline text editing.
// Handles backspace (rune-aware) and single printable characters.
// Returns the text unchanged for non-printable keys (enter, esc, etc.).
// Input is clamped to maxInputLen runes.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	case "space":
		key = " "
	}
	if utf8.RuneCountInString(key) == 1 {
		if utf8.RuneCountInString(text) >= maxInputLen {
			return text
		}
		return text + key
	}
	return text
}

// appendText appends pasted or multi-rune input, clamped to maxInputLen runes.
func appendText(text, add string) string {
	room := maxInputLen - utf8.RuneCountInString(text)
	if room <= 0 {
		return text
	}
	runes := []rune(add)
	if len(runes) > room {
		runes = runes[:room]
	}
	return text + string(runes)
}

// truncateToHeight limits output to maxLines newline-delimited lines.
// Returns the original string if it fits or maxLines is <= 0.
func truncateToHeight(s string, maxLines int) string {
	if maxLines <= 0 {
		return s
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			n++
			if n >= maxLines {
				return s[:i+1]
			}
		}
	}
	return s
}

// renderChatInput renders the inline message input with a blinking cursor
// and a placeholder when empty.
func renderChatInput(name, input, placeholder string, focused bool, blinkFrame int) string {
	const timeIndent = "        " // matches " " + 5-char timestamp + "  "

	sep := chatSepStyle.Render(" · ")
	namePart := chatInputNameStyle.Render(name)
	if !focused {
		if input == "" {
			return timeIndent + namePart + sep + inputPlaceholderStyle.Render(placeholder)
		}
		return timeIndent + namePart + sep + dimStyle.Render(input)
	}
	cursor := " "
	if (blinkFrame/4)%2 == 0 {
		cursor = accentStyle.Render("█")
	}
	if input == "" {
		return timeIndent + namePart + sep + cursor
	}
	return timeIndent + namePart + sep + chatComposingStyle.Render(input) + cursor
}
