package engine

import "strings"

const autoLanguage = "auto"

func normaliseLanguage(candidate, fallback string) string {
	if trimmed := strings.TrimSpace(candidate); trimmed != "" {
		return strings.ToLower(trimmed)
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return strings.ToLower(trimmed)
	}
	return autoLanguage
}

// explicitLanguage returns the hint, or "" when the model should detect it.
func explicitLanguage(lang string) string {
	lang = normaliseLanguage(lang, "")
	if lang == autoLanguage {
		return ""
	}
	return lang
}

// cleanTranscript trims model output and maps whisper's silence marker to "".
func cleanTranscript(text string) string {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "[BLANK_AUDIO]") {
		return ""
	}
	return text
}
