package notify

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// plainTextRenderer derives the text/plain alternative from a rendered HTML body so
// both parts always carry the same facts.
type plainTextRenderer struct {
	conv *md.Converter
}

func newPlainTextRenderer() *plainTextRenderer {
	conv := md.NewConverter("", true, &md.Options{
		EscapeMode:   "disabled",
		HeadingStyle: "setext",
	})
	conv.AddRules(md.Rule{
		Filter: []string{"a"},
		Replacement: func(content string, selec *goquery.Selection, _ *md.Options) *string {
			href := strings.TrimSpace(selec.AttrOr("href", ""))
			content = strings.TrimSpace(content)
			switch {
			case href == "" || href == content:
				return md.String(content)
			case content == "":
				return md.String(href)
			default:
				return md.String(content + " (" + href + ")")
			}
		},
	})
	conv.Remove("head")
	return &plainTextRenderer{conv: conv}
}

func (r *plainTextRenderer) Render(html string) (string, error) {
	text, err := r.conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	return text + "\n", nil
}
