package trace

// span attribute keys for shortlink operations.
const (
	ShortlinkKeyword = "shortlink.keyword"
	ShortlinkURL     = "shortlink.url"
	ShortlinkOutcome = "shortlink.outcome"
)
