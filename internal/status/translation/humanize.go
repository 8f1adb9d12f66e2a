package translation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Humanize turns an identifier into a display name: underscores become
// spaces and each word is title-cased ("order_placed" -> "Order Placed").
func Humanize(identifier string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(identifier, "_", " "))
}
