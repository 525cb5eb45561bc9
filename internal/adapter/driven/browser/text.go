package browser

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// PageText reduces an HTML document to its visible text on one line.
func PageText(doc string) string {
	text := html.UnescapeString(strictPolicy.Sanitize(doc))
	return strings.Join(strings.Fields(text), " ")
}
