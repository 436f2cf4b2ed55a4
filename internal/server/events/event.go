package events

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/palemoky/drop-three/internal/types"
)

var errMissingField = errors.New("对局事件缺少字段")

// MatchFinished 对局结束事件
type MatchFinished struct {
	EventID      string
	RoomCode     string
	WinnerID     *string // 平局为 nil
	Participants []types.Identity
	FinishedAt   time.Time
}

// Encode 编码为 google.protobuf.Struct 的二进制格式
func Encode(ev MatchFinished) ([]byte, error) {
	participants := make([]any, 0, len(ev.Participants))
	for _, p := range ev.Participants {
		participants = append(participants, map[string]any{
			"id":       p.ID,
			"username": p.Username,
		})
	}

	var winner any
	if ev.WinnerID != nil {
		winner = *ev.WinnerID
	}

	ts := timestamppb.New(ev.FinishedAt)
	body, err := structpb.NewStruct(map[string]any{
		"eventId":      ev.EventID,
		"roomCode":     ev.RoomCode,
		"winnerId":     winner,
		"participants": participants,
		"finishedAt": map[string]any{
			"seconds": ts.GetSeconds(),
			"nanos":   ts.GetNanos(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("构造对局事件失败: %w", err)
	}

	data, err := proto.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("编码对局事件失败: %w", err)
	}
	return data, nil
}

// Decode 解码对局事件
func Decode(data []byte) (MatchFinished, error) {
	var body structpb.Struct
	if err := proto.Unmarshal(data, &body); err != nil {
		return MatchFinished{}, fmt.Errorf("解码对局事件失败: %w", err)
	}

	fields := body.GetFields()
	roomCode := fields["roomCode"].GetStringValue()
	if roomCode == "" {
		return MatchFinished{}, fmt.Errorf("%w: roomCode", errMissingField)
	}

	ev := MatchFinished{
		EventID:  fields["eventId"].GetStringValue(),
		RoomCode: roomCode,
	}

	if w, ok := fields["winnerId"].GetKind().(*structpb.Value_StringValue); ok {
		winner := w.StringValue
		ev.WinnerID = &winner
	}

	for _, v := range fields["participants"].GetListValue().GetValues() {
		p := v.GetStructValue().GetFields()
		ev.Participants = append(ev.Participants, types.Identity{
			ID:       p["id"].GetStringValue(),
			Username: p["username"].GetStringValue(),
		})
	}

	finished := fields["finishedAt"].GetStructValue().GetFields()
	ts := &timestamppb.Timestamp{
		Seconds: int64(finished["seconds"].GetNumberValue()),
		Nanos:   int32(finished["nanos"].GetNumberValue()),
	}
	if err := ts.CheckValid(); err != nil {
		return MatchFinished{}, fmt.Errorf("%w: finishedAt", errMissingField)
	}
	ev.FinishedAt = ts.AsTime()
	return ev, nil
}
