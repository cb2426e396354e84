package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

var levelIcons = map[string]string{
	"debug": "⚪️",
	"info":  "🔵",
	"warn":  "🟠",
	"error": "🔴",
	"fatal": "🔴",
	"panic": "🔴",
}

// formatRecord renders one zerolog JSON line as Telegram HTML: icon, level and
// message on the first line, then the remaining fields sorted by key.
func formatRecord(p []byte) string {
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(p), &rec); err != nil {
		return html.EscapeString(truncate(strings.TrimSpace(string(p)), opsMessageLimit))
	}

	level, _ := rec["level"].(string)
	msg, _ := rec["message"].(string)

	var b strings.Builder
	if icon, ok := levelIcons[level]; ok {
		b.WriteString(icon + " ")
	}
	if level != "" {
		b.WriteString("<b>" + strings.ToUpper(level) + "</b> ")
	}
	b.WriteString(html.EscapeString(msg))

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case "level", "message", "time":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := fmt.Sprint(rec[k])
		limit := 300
		if k == "stack" {
			limit = 900
		}
		b.WriteString("\n<code>" + html.EscapeString(k) + "</code> " + html.EscapeString(truncate(v, limit)))
	}

	// Cut before escaping would be nicer, but the body is already HTML here;
	// trimming at a rune boundary may still break an entity, so cut at the
	// last newline under the limit.
	out := b.String()
	if len(out) > opsMessageLimit {
		cut := strings.LastIndexByte(out[:opsMessageLimit], '\n')
		if cut <= 0 {
			cut = opsMessageLimit
		}
		out = out[:cut] + "\n…"
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
