package components

// ToggleLikeMsg is sent when the user likes or unlikes a post.
type ToggleLikeMsg struct {
	ID string
}

// ToggleConnectionMsg is sent when the user connects to or disconnects from
// a peer.
type ToggleConnectionMsg struct {
	ID string
}

// AcceptMsg is sent when the user accepts an incoming request.
type AcceptMsg struct {
	ID string
}

// QueryChangedMsg is sent whenever the search text changes.
type QueryChangedMsg struct {
	Query string
}

// RefreshFeedMsg asks for the feed to be fetched again.
type RefreshFeedMsg struct{}

// CopyMsg requests copying content to the clipboard.
type CopyMsg struct {
	Content string
}
