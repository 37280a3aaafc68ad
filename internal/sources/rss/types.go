package rss

// Feed is one RSS or Atom endpoint watched by an rss source.
type Feed struct {
	URL      string
	Name     string
	Category string
	MaxItems int
}

type FeedLoader interface {
	Load(value string, maxItems int) ([]Feed, error)
}
