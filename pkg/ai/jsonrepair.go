package ai

import "strings"

// ExtractJSON выделяет JSON-документ из ответа модели: срезает markdown-ограждения
// и посторонний текст вокруг первого JSON-объекта. Если в тексте не находится
// ни ограждений, ни '{', строка возвращается как есть.
func ExtractJSON(s string) string {
	trimmed := strings.TrimSpace(s)

	if idx := strings.Index(trimmed, "```json"); idx != -1 {
		rest := trimmed[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(trimmed, "```"); idx != -1 {
		rest := trimmed[idx+3:]
		if end := strings.Index(rest, "```"); end != -1 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}

	if start := strings.Index(trimmed, "{"); start > 0 {
		return trimmed[start:]
	}
	return trimmed
}

// RepairJSON пытается исправить типичные поломки JSON в оборванном ответе
// модели: незакрытую строку в конце и недостающие закрывающие скобки.
// Порядок фиксированный: сначала закрывается строка, затем скобки; баланс
// скобок считается по уже исправленному тексту, скобки внутри строк не
// учитываются. На корректном тексте функция ничего не меняет. Результат
// не обязан парситься - вызывающая сторона повторяет строгий парсинг сама.
func RepairJSON(jsonStr string) string {
	if jsonStr == "" {
		return jsonStr
	}

	inString := false
	escaped := false
	var open []rune

	for _, char := range jsonStr {
		if char == '"' && !escaped {
			inString = !inString
		}

		if !inString {
			switch char {
			case '{', '[':
				open = append(open, char)
			case '}':
				if n := len(open); n > 0 && open[n-1] == '{' {
					open = open[:n-1]
				}
			case ']':
				if n := len(open); n > 0 && open[n-1] == '[' {
					open = open[:n-1]
				}
			}
		}

		if char == '\\' && !escaped {
			escaped = true
		} else {
			escaped = false
		}
	}

	fixed := jsonStr
	if inString {
		log.Debug().Msg("[RepairJSON] Закрываем оборванную строку")
		fixed += `"`
	}
	// Недостающие закрывающие скобки добавляются от внутренних к внешним,
	// чтобы восстановленная вложенность оставалась корректной.
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			fixed += "}"
		} else {
			fixed += "]"
		}
	}

	if fixed != jsonStr {
		log.Debug().Int("original", len(jsonStr)).Int("fixed", len(fixed)).Msg("[RepairJSON] JSON был исправлен")
	}
	return fixed
}
