package rss

import "fmt"

type URLLoader struct{}

func (u *URLLoader) Load(value string, maxItems int) ([]Feed, error) {
	if value == "" {
		return nil, fmt.Errorf("feed url is empty")
	}
	return []Feed{
		{
			URL:      value,
			Name:     sanitizeName(value),
			MaxItems: maxItems,
		},
	}, nil
}

type OPMLFileLoader struct{}

func (o *OPMLFileLoader) Load(path string, maxItems int) ([]Feed, error) {
	data, err := LoadOPMLFile(path)
	if err != nil {
		return nil, err
	}
	return withLimit(ParseOPML(data))(maxItems)
}

type OPMLURLLoader struct{}

func (o *OPMLURLLoader) Load(url string, maxItems int) ([]Feed, error) {
	data, err := FetchOPML(url)
	if err != nil {
		return nil, err
	}
	return withLimit(ParseOPML(data))(maxItems)
}

func withLimit(feeds []Feed, err error) func(int) ([]Feed, error) {
	return func(maxItems int) ([]Feed, error) {
		if err != nil {
			return nil, err
		}
		for i := range feeds {
			feeds[i].MaxItems = maxItems
		}
		return feeds, nil
	}
}

func init() {
	RegisterLoader("url", &URLLoader{})
	RegisterLoader("opml_file", &OPMLFileLoader{})
	RegisterLoader("opml_url", &OPMLURLLoader{})
}
