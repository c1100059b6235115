package jellyfin

// Wire shapes for the Jellyfin server API. Field names follow the server's
// PascalCase JSON convention.

type AuthRequest struct {
	Username string `json:"Username"`
	Password string `json:"Pw"`
}

type AuthResult struct {
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
	User        *User  `json:"User"`
}

type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type QuickConnectState struct {
	Code   string `json:"Code"`
	Secret string `json:"Secret"`
}

type QuickConnectResult struct {
	Authenticated bool   `json:"Authenticated"`
	AccessToken   string `json:"AccessToken"`
	// Older servers report the user id as Id, newer ones as UserId.
	ID     string `json:"Id"`
	UserID string `json:"UserId"`
}

// ResolvedUserID returns whichever user id field the server populated.
func (r QuickConnectResult) ResolvedUserID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.UserID
}

type BaseItem struct {
	ID           string            `json:"Id"`
	Name         string            `json:"Name"`
	Type         string            `json:"Type"`
	Album        string            `json:"Album,omitempty"`
	AlbumID      string            `json:"AlbumId,omitempty"`
	Artists      []string          `json:"Artists,omitempty"`
	IndexNumber  *int              `json:"IndexNumber,omitempty"`
	RunTimeTicks *int64            `json:"RunTimeTicks,omitempty"`
	ImageTags    map[string]string `json:"ImageTags,omitempty"`

	// AlbumPrimaryImageTag lets a track without its own artwork borrow
	// the parent album's.
	AlbumPrimaryImageTag string `json:"AlbumPrimaryImageTag,omitempty"`
}

// PrimaryImageTag returns the Primary image tag if the item has one.
func (b BaseItem) PrimaryImageTag() string {
	return b.ImageTags["Primary"]
}

type QueryResult struct {
	Items            []BaseItem `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount"`
}

type SystemInfo struct {
	ID          string `json:"Id"`
	ServerName  string `json:"ServerName"`
	Version     string `json:"Version"`
	ProductName string `json:"ProductName"`
}

// Playback telemetry bodies. Position is always in ticks on the wire.

type PlaybackStartInfo struct {
	ItemID        string `json:"ItemId"`
	CanSeek       bool   `json:"CanSeek"`
	IsPaused      bool   `json:"IsPaused"`
	PositionTicks int64  `json:"PositionTicks"`
	PlayMethod    string `json:"PlayMethod"`
	PlaySessionID string `json:"PlaySessionId,omitempty"`
}

type PlaybackProgressInfo struct {
	ItemID        string `json:"ItemId"`
	CanSeek       bool   `json:"CanSeek"`
	IsPaused      bool   `json:"IsPaused"`
	PositionTicks int64  `json:"PositionTicks"`
	PlayMethod    string `json:"PlayMethod"`
	PlaySessionID string `json:"PlaySessionId,omitempty"`
}

type PlaybackStopInfo struct {
	ItemID        string  `json:"ItemId"`
	PositionTicks int64   `json:"PositionTicks"`
	Failed        bool    `json:"Failed"`
	PlaySessionID string  `json:"PlaySessionId,omitempty"`
	NextMediaType *string `json:"NextMediaType,omitempty"`
}

// Lyrics, as served by GET /Audio/{id}/Lyrics.

type Lyrics struct {
	Metadata *LyricMetadata `json:"Metadata,omitempty"`
	Lyrics   []LyricLine    `json:"Lyrics"`
}

type LyricMetadata struct {
	Artist   string `json:"Artist,omitempty"`
	Album    string `json:"Album,omitempty"`
	Title    string `json:"Title,omitempty"`
	Author   string `json:"Author,omitempty"`
	Length   int64  `json:"Length,omitempty"`
	Offset   int64  `json:"Offset,omitempty"`
	IsSynced bool   `json:"IsSynced,omitempty"`
}

type LyricLine struct {
	Text  string `json:"Text"`
	Start *int64 `json:"Start,omitempty"`
	End   *int64 `json:"End,omitempty"`
}
