package protocol

// --- 客户端请求 Payloads ---

// MakeMovePayload 落子请求
type MakeMovePayload struct {
	Column int `json:"column"`
}

// SendChatPayload 聊天请求
type SendChatPayload struct {
	Text string `json:"text"`
}

// --- 服务端响应 Payloads ---

// GameStatePayload 房间状态推送
type GameStatePayload struct {
	GameState *GameState `json:"gameState"`
}

// ErrorPayload 错误消息
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// InfoPayload 系统通知
type InfoPayload struct {
	Message string `json:"message"`
}

// RoomClosedPayload 房间关闭通知
type RoomClosedPayload struct {
	Message string `json:"message"`
}

// NewMessagePayload 聊天消息转发
type NewMessagePayload struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// --- 房间视图 ---

// PlayerInfo 玩家公开信息
type PlayerInfo struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	IsOnline          bool   `json:"isOnline"`
	InactivityStrikes int    `json:"inactivityStrikes"`
}

// GameState 房间对外投影，不含任何连接句柄
type GameState struct {
	RoomCode           string       `json:"roomCode"`
	HostID             string       `json:"hostId"`
	HostName           string       `json:"hostName"`
	Players            []PlayerInfo `json:"players"`
	Board              [][]string   `json:"board"` // 空格为 ""
	PlayerOrder        []string     `json:"playerOrder"`
	PlayerOrderHistory []string     `json:"playerOrderHistory"`
	CurrentPlayerIndex int          `json:"currentPlayerIndex"`
	Status             string       `json:"status"`
	Winner             *string      `json:"winner"`
	IsDraw             bool         `json:"isDraw"`
	TurnEndsAt         *int64       `json:"turnEndsAt,omitempty"` // 毫秒时间戳
	ReadyVotes         []string     `json:"readyVotes"`
	RematchVotes       []string     `json:"rematchVotes"`
	RematchVoteEndsAt  *int64       `json:"rematchVoteEndsAt,omitempty"` // 毫秒时间戳
}
