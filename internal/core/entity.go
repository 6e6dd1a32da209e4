package core

// Post is a feed entry that can be liked.
type Post struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
	Likes  int    `json:"likes"`
	// Liked is nil when the authority did not say.
	Liked *bool `json:"liked,omitempty"`
}

// Snapshot returns the authority's view of the liked relation for the post.
func (p Post) Snapshot() Snapshot {
	return Snapshot{Value: p.Liked, Count: Int(p.Likes)}
}

// SearchResult is one row of a peer search.
type SearchResult struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Status      Status `json:"status"`
}

// Key returns the identifier used for relation tracking. Peers are keyed by
// username when the authority provides one.
func (r SearchResult) Key() string {
	if r.Username != "" {
		return r.Username
	}
	return r.ID
}

// Snapshot returns the authority's view of the connected relation.
func (r SearchResult) Snapshot() Snapshot {
	s := Snapshot{Status: r.Status}
	if r.Status != StatusUnknown && r.Status != StatusSelf {
		s.Value = Bool(r.Status.On())
	}
	return s
}
