package httpsession

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SubmitForm fills the form matched by formSelector on the current page and
// submits it. Existing control values are kept unless overridden by fields.
// When submitName is set the named submit control is "clicked" and its value
// sent along.
func (s *Session) SubmitForm(ctx context.Context, formSelector string, fields map[string]string, submitName string) (*Page, error) {
	if s.current == nil {
		return nil, ErrNoPage
	}
	doc, err := s.current.Doc()
	if err != nil {
		return nil, err
	}

	form := doc.Find(formSelector).First()
	if form.Length() == 0 || goquery.NodeName(form) != "form" {
		return nil, fmt.Errorf("form %q not found on %s", formSelector, s.current.URL)
	}

	values, err := formValues(form, submitName)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		values.Set(k, v)
	}

	action, _ := form.Attr("action")
	target := s.current.URL
	if strings.TrimSpace(action) != "" {
		target = s.current.Resolve(action)
	}

	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))
	if method == http.MethodPost {
		return s.Post(ctx, target, values)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("form action %q: %w", action, err)
	}
	u.RawQuery = values.Encode()
	return s.OpenFresh(ctx, u.String())
}

// formValues collects the successful controls of a form the way a browser
// would on submit.
func formValues(form *goquery.Selection, submitName string) (url.Values, error) {
	values := url.Values{}
	clicked := submitName == ""

	form.Find("input, select, textarea, button").Each(func(_ int, c *goquery.Selection) {
		name, ok := c.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := c.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(c) {
		case "select":
			var picked []string
			c.Find("option[selected]").Each(func(_ int, o *goquery.Selection) {
				picked = append(picked, optionValue(o))
			})
			if len(picked) == 0 {
				if _, multiple := c.Attr("multiple"); !multiple {
					if first := c.Find("option").First(); first.Length() > 0 {
						picked = append(picked, optionValue(first))
					}
				}
			}
			for _, v := range picked {
				values.Add(name, v)
			}
		case "textarea":
			values.Add(name, c.Text())
		case "button":
			if name == submitName && !clicked {
				values.Add(name, c.AttrOr("value", ""))
				clicked = true
			}
		default:
			typ := strings.ToLower(c.AttrOr("type", "text"))
			switch typ {
			case "submit", "image", "button", "reset":
				if name == submitName && !clicked {
					values.Add(name, c.AttrOr("value", ""))
					clicked = true
				}
			case "checkbox", "radio":
				if _, checked := c.Attr("checked"); checked {
					values.Add(name, c.AttrOr("value", "on"))
				}
			case "file":
			default:
				values.Add(name, c.AttrOr("value", ""))
			}
		}
	})

	if !clicked {
		return nil, fmt.Errorf("submit control %q not found in form", submitName)
	}
	return values, nil
}

func optionValue(o *goquery.Selection) string {
	if v, ok := o.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(o.Text())
}

// FollowLink opens the first link on the current page whose text equals
// text, falling back to the first link whose text contains it
// (case-insensitive).
func (s *Session) FollowLink(ctx context.Context, text string) (*Page, error) {
	href, err := s.FindLink(text)
	if err != nil {
		return nil, err
	}
	return s.OpenFresh(ctx, href)
}

// FindLink returns the absolute href FollowLink would open.
func (s *Session) FindLink(text string) (string, error) {
	if s.current == nil {
		return "", ErrNoPage
	}
	doc, err := s.current.Doc()
	if err != nil {
		return "", err
	}

	want := strings.TrimSpace(text)
	var exact, partial string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		label := strings.Join(strings.Fields(a.Text()), " ")
		href, _ := a.Attr("href")
		switch {
		case label == want:
			exact = href
			return false
		case partial == "" && strings.Contains(strings.ToLower(label), strings.ToLower(want)):
			partial = href
		}
		return true
	})

	href := exact
	if href == "" {
		href = partial
	}
	if href == "" {
		return "", fmt.Errorf("link %q not found on %s", text, s.current.URL)
	}
	return s.current.Resolve(href), nil
}
