package room

import "fmt"

// Status 房间状态
type Status int

const (
	StatusWaiting Status = iota
	StatusReadyCheck
	StatusPlaying
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusReadyCheck:
		return "readyCheck"
	case StatusPlaying:
		return "playing"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// transitions 合法的状态迁移表，房间删除不属于状态迁移
var transitions = map[Status][]Status{
	StatusWaiting:    {StatusWaiting, StatusReadyCheck},
	StatusReadyCheck: {StatusPlaying, StatusWaiting},
	StatusPlaying:    {StatusFinished, StatusWaiting},
	StatusFinished:   {StatusPlaying, StatusWaiting},
}

// CanTransitionTo 判断状态迁移是否在迁移表中
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态迁移
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid room transition %s -> %s", e.From, e.To)
}
