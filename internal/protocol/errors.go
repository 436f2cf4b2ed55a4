package protocol

// 错误码
const (
	ErrCodeUnknown           = 1000
	ErrCodeInvalidMsg        = 1001
	ErrCodeRateLimit         = 1002 // 速率限制
	ErrCodeUnauthorized      = 1003 // 身份校验失败
	ErrCodeRoomNotFound      = 2001
	ErrCodeNotAccepting      = 2002 // 房间已满或已开局
	ErrCodeNotInRoom         = 2003
	ErrCodeDuplicateSession  = 2004 // 同一账号重复连接
	ErrCodeGameNotActive     = 3001
	ErrCodeNotYourTurn       = 3002
	ErrCodeInvalidColumn     = 3003
	ErrCodeColumnFull        = 3004
	ErrCodeAlreadyVoted      = 3005
	ErrCodeWrongPhase        = 3006 // 当前阶段不能投票
	ErrCodeChatTooLong       = 3007
	ErrCodeChatEmpty         = 3008
	ErrCodeServerMaintenance = 5003 // 服务器维护中
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:           "未知错误",
	ErrCodeInvalidMsg:        "无效的消息格式",
	ErrCodeRateLimit:         "请求过于频繁",
	ErrCodeUnauthorized:      "身份校验失败，请重新登录",
	ErrCodeRoomNotFound:      "房间不存在",
	ErrCodeNotAccepting:      "房间已满或游戏已开始",
	ErrCodeNotInRoom:         "您不在房间中",
	ErrCodeDuplicateSession:  "您已在其他页面进入该房间",
	ErrCodeGameNotActive:     "游戏未在进行中",
	ErrCodeNotYourTurn:       "还没轮到您",
	ErrCodeInvalidColumn:     "无效的列",
	ErrCodeColumnFull:        "该列已满",
	ErrCodeAlreadyVoted:      "您已经投过票了",
	ErrCodeWrongPhase:        "当前阶段不能进行该操作",
	ErrCodeChatTooLong:       "聊天消息过长",
	ErrCodeChatEmpty:         "聊天消息不能为空",
	ErrCodeServerMaintenance: "服务器维护中",
}
