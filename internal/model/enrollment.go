package model

import "time"

// Enrollment は (学生, 学期, コース, セクション) の登録行を表す。
// 同一の組は高々1行。DB制約ではなく作成前の存在確認で保証する。
type Enrollment struct {
	ID         string
	StudentID  int64
	Term       int
	CourseCode string
	Section    int
	CreatedAt  time.Time
}

// User はDiscordユーザーの永続化レコード。
type User struct {
	ID          int64
	Username    string
	NotifyPeers bool
	BirthMonth  *int
	BirthDay    *int
	CreatedAt   time.Time
}

// SectionPeer は同じセクションを履修している学生。
type SectionPeer struct {
	StudentID int64
	Section   int
}

// AlumnusPeer は過去の学期に同じコースを履修した学生。
type AlumnusPeer struct {
	StudentID int64
	Term      int
}

// PeerInfo はピア検索の結果。キーはいずれもコースコード。
type PeerInfo struct {
	Coursemates  map[string][]int64
	Sectionmates map[string][]SectionPeer
	Alumni       map[string][]AlumnusPeer
}
