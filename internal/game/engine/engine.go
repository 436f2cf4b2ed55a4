// Package engine 实现 9×10 重力落子棋盘的纯规则：落子校验、三连判定与平局判定。
// 不做任何 I/O，也不持有计时器。
package engine

import "errors"

const (
	Rows      = 9
	Cols      = 10
	WinLength = 3
)

// Board 棋盘，Board[row][col]，第 0 行在最上方；空格为 ""
type Board [Rows][Cols]string

// Outcome 落子后的局面
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeWin
	OutcomeDraw
)

// 落子被拒绝的原因
var (
	ErrNotYourTurn   = errors.New("not your turn")
	ErrInvalidColumn = errors.New("invalid column")
	ErrColumnFull    = errors.New("column full")
)

// State 规则计算所需的对局状态
type State struct {
	Board              Board
	PlayerOrder        []string
	CurrentPlayerIndex int
}

// Result 一次合法落子的结果
type Result struct {
	Board           Board
	Row             int
	Column          int
	NextPlayerIndex int
	Outcome         Outcome
	Winner          string // 仅 OutcomeWin 时有值
}

// Apply 校验并执行一次落子，拒绝时不修改任何状态
func Apply(s State, playerID string, column int) (Result, error) {
	if len(s.PlayerOrder) == 0 || s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.PlayerOrder) {
		return Result{}, ErrNotYourTurn
	}
	if s.PlayerOrder[s.CurrentPlayerIndex] != playerID {
		return Result{}, ErrNotYourTurn
	}
	if column < 0 || column >= Cols {
		return Result{}, ErrInvalidColumn
	}

	row := s.Board.DropRow(column)
	if row < 0 {
		return Result{}, ErrColumnFull
	}

	// Board 是数组，赋值即拷贝
	next := s.Board
	next[row][column] = playerID

	res := Result{
		Board:           next,
		Row:             row,
		Column:          column,
		NextPlayerIndex: (s.CurrentPlayerIndex + 1) % len(s.PlayerOrder),
		Outcome:         OutcomeContinue,
	}

	switch {
	case next.IsWinningPlacement(row, column):
		res.Outcome = OutcomeWin
		res.Winner = playerID
	case next.IsFull():
		res.Outcome = OutcomeDraw
	}
	return res, nil
}

// DropRow 返回该列最低的空行，列满返回 -1
func (b *Board) DropRow(column int) int {
	if column < 0 || column >= Cols {
		return -1
	}
	for r := Rows - 1; r >= 0; r-- {
		if b[r][column] == "" {
			return r
		}
	}
	return -1
}

// IsFull 棋盘是否已下满
func (b *Board) IsFull() bool {
	for c := range Cols {
		if b[0][c] == "" {
			return false
		}
	}
	return true
}

// axes 四个方向：横、竖、两条对角线
var axes = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// IsWinningPlacement 以 (row, col) 上的棋子为中心检查是否形成三连
func (b *Board) IsWinningPlacement(row, col int) bool {
	owner := b[row][col]
	if owner == "" {
		return false
	}
	for _, axis := range axes {
		count := 1 + b.run(row, col, axis[0], axis[1], owner) + b.run(row, col, -axis[0], -axis[1], owner)
		if count >= WinLength {
			return true
		}
	}
	return false
}

// run 沿方向 (dr, dc) 统计连续同色棋子数，不含起点
func (b *Board) run(row, col, dr, dc int, owner string) int {
	n := 0
	for r, c := row+dr, col+dc; r >= 0 && r < Rows && c >= 0 && c < Cols; r, c = r+dr, c+dc {
		if b[r][c] != owner {
			break
		}
		n++
	}
	return n
}

// Cells 转成二维切片，供投影使用
func (b *Board) Cells() [][]string {
	out := make([][]string, Rows)
	for r := range Rows {
		row := make([]string, Cols)
		copy(row, b[r][:])
		out[r] = row
	}
	return out
}
