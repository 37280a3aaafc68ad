package rss

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type opmlDocument struct {
	XMLName xml.Name      `xml:"opml"`
	Body    []opmlOutline `xml:"body>outline"`
}

type opmlOutline struct {
	Title    string        `xml:"title,attr"`
	Text     string        `xml:"text,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

func (o opmlOutline) label() string {
	if o.Title != "" {
		return o.Title
	}
	return o.Text
}

// ParseOPML returns every feed in the document once, in document order.
// A feed nested in a folder outline takes the folder label as category.
func ParseOPML(data []byte) ([]Feed, error) {
	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	seen := make(map[string]bool)
	var feeds []Feed

	var walk func(outlines []opmlOutline, category string)
	walk = func(outlines []opmlOutline, category string) {
		for _, o := range outlines {
			if o.XMLURL == "" {
				walk(o.Outlines, o.label())
				continue
			}
			if seen[o.XMLURL] {
				continue
			}
			seen[o.XMLURL] = true

			name := o.label()
			if name == "" {
				name = o.XMLURL
			}
			feeds = append(feeds, Feed{
				URL:      o.XMLURL,
				Name:     sanitizeName(name),
				Category: category,
			})
			walk(o.Outlines, category)
		}
	}
	walk(doc.Body, "")

	return feeds, nil
}

var nameReplacer = strings.NewReplacer(" ", "_", ".", "_", "-", "_", "&", "and")

func sanitizeName(name string) string {
	name = nameReplacer.Replace(strings.ToLower(name))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, name)
}

func LoadOPMLFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML file: %w", err)
	}
	return data, nil
}

var opmlClient = &http.Client{Timeout: 30 * time.Second}

func FetchOPML(url string) ([]byte, error) {
	resp, err := opmlClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OPML: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch OPML: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML response: %w", err)
	}
	return data, nil
}
