// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/reginald/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// InsertIfAbsent はユーザーが存在しない場合のみ作成する。
	// 作成した場合はtrueを返す。
	InsertIfAbsent(ctx context.Context, user *model.User) (bool, error)

	// UpdateNotifyPeers はピア通知の受信設定を更新する。
	UpdateNotifyPeers(ctx context.Context, id int64, notify bool) error
}

// EnrollmentRepository は履修登録の永続化インターフェース。
// コースコードは model.Course.String() の形式で保存する。
type EnrollmentRepository interface {
	// ExistsForTerm は学生がその学期に1件以上登録しているかを返す。
	ExistsForTerm(ctx context.Context, studentID int64, term int) (bool, error)

	// CountForTerm は学生の学期内の登録数を返す。
	CountForTerm(ctx context.Context, studentID int64, term int) (int, error)

	// ExistsForCourse は学生がその学期にコースのいずれかのセクションを登録しているかを返す。
	ExistsForCourse(ctx context.Context, studentID int64, term int, courseCode string) (bool, error)

	// ListByStudentTerm は学生の学期内の登録を作成順に返す。
	ListByStudentTerm(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error)

	// CreateIfAbsent は同じ (学生, 学期, コース, セクション) の行がない場合のみ作成する。
	// 作成した場合はtrueを返す。
	CreateIfAbsent(ctx context.Context, enrollment *model.Enrollment) (bool, error)

	// Delete は一致する登録を削除し、削除した行数を返す。
	Delete(ctx context.Context, studentID int64, term int, courseCode string, section int) (int64, error)

	// DeleteByStudentTerm は学生の学期内の登録をすべて削除し、削除した行数を返す。
	DeleteByStudentTerm(ctx context.Context, studentID int64, term int) (int64, error)

	// ListNotifiablePeers は通知を受け取る設定の他の学生のうち、
	// 同じコースを同じ学期以降に登録している行を返す。
	ListNotifiablePeers(ctx context.Context, enrollment *model.Enrollment) ([]model.Enrollment, error)

	// ListCoursemates は学生が同じ学期に登録しているコースを登録している他の学生を返す。
	// 返す行はCourseCodeとStudentIDのみを持つ。
	ListCoursemates(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error)

	// ListSectionPeers は学生と同じ学期・コース・セクションを登録している他の学生を返す。
	// 返す行はCourseCode、Section、StudentIDのみを持つ。
	ListSectionPeers(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error)

	// ListAlumni は学生がその学期に登録しているコースを過去の学期に登録していた他の学生を返す。
	// 返す行はCourseCode、Term、StudentIDのみを持つ。
	ListAlumni(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error)
}
