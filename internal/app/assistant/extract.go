package assistant

import (
	"strings"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// ExtractText flattens message content into one string. Text segments give
// their value, any other segment gives its raw form. Nil content yields "".
func ExtractText(content []domain.Segment) string {
	if len(content) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range content {
		if seg.Text != nil {
			b.WriteString(*seg.Text)
			continue
		}
		b.WriteString(seg.Raw)
	}
	return b.String()
}
