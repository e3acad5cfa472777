// Package model はスケジュール機能のドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// UserError はユーザーにそのまま見せるエラーを表す。
// 入力ミスや存在しないセクションなど、状態を変更する前に検出される失敗に使う。
type UserError struct {
	Code     string // エラーコード
	Message  string // ユーザー向けメッセージ（Discordのマークダウン可）
	Category string // カテゴリ: validation, not_found, system
}

// Error はerrorインターフェースを実装する。
func (e *UserError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// カテゴリ
const (
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidCourseCode = "INVALID_COURSE_CODE"
	ErrCodeInvalidInteger    = "INVALID_INTEGER"
	ErrCodeInvalidClassCount = "INVALID_CLASS_COUNT"
	ErrCodeUnknownTerm       = "UNKNOWN_TERM"
	ErrCodeSectionNotFound   = "SECTION_NOT_FOUND"
	ErrCodeEmptySchedule     = "EMPTY_SCHEDULE"
	ErrCodeScheduleFull      = "SCHEDULE_FULL"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeMissingOption     = "MISSING_OPTION"
)

// ErrCorruptCourseCode は保存済みのコースコードがパースできないことを示す。
// データ破損を意味するため、呼び出し側は握りつぶしてはならない。
var ErrCorruptCourseCode = errors.New("stored course code is corrupt")

// AsUserError はerrのチェーンからUserErrorを取り出す。
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// NewInvalidCourseCodeError はコースコードの形式エラーを生成する。
func NewInvalidCourseCodeError(input string) *UserError {
	return &UserError{
		Code:     ErrCodeInvalidCourseCode,
		Message:  fmt.Sprintf("`%s` is not a properly formatted course code.", input),
		Category: CategoryValidation,
	}
}

// NewNotIntegerError は整数でない入力のエラーを生成する。
func NewNotIntegerError(input string) *UserError {
	return &UserError{
		Code:     ErrCodeInvalidInteger,
		Message:  fmt.Sprintf("`%s` is not an integer.", input),
		Category: CategoryValidation,
	}
}

// NewInvalidIntegerError は一括登録のクラス番号が整数でない場合のエラーを生成する。
func NewInvalidIntegerError(input string) *UserError {
	return &UserError{
		Code:     ErrCodeInvalidInteger,
		Message:  fmt.Sprintf("`%s` is not a valid integer.", input),
		Category: CategoryValidation,
	}
}

// NewTooFewClassesError はクラス数が下限未満の場合のエラーを生成する。
func NewTooFewClassesError(min, supplied int) *UserError {
	return &UserError{
		Code: ErrCodeInvalidClassCount,
		Message: fmt.Sprintf(
			"Too few classes (%d minimum, %d supplied). "+
				"This command sets your entire schedule for a term. "+
				"It does not just add the classes you specify---it removes all those you don't specify.\n"+
				"To clear your schedule, use `/schedule-clear`.",
			min, supplied),
		Category: CategoryValidation,
	}
}

// NewTooManyClassesError はクラス数が上限を超えた場合のエラーを生成する。
func NewTooManyClassesError(max, supplied int) *UserError {
	return &UserError{
		Code:     ErrCodeInvalidClassCount,
		Message:  fmt.Sprintf("Too many classes (%d max, %d supplied)", max, supplied),
		Category: CategoryValidation,
	}
}

// NewUnknownTermError は未知の学期名のエラーを生成する。
func NewUnknownTermError(term string) *UserError {
	return &UserError{
		Code:     ErrCodeUnknownTerm,
		Message:  fmt.Sprintf("`%s` is not a valid term.", term),
		Category: CategoryValidation,
	}
}

// NewSectionNotFoundError はセクションが存在しない場合のエラーを生成する。
// 中間試験セクションを指定した場合もこのエラーになる。
func NewSectionNotFoundError(course Course, section int, termName string) *UserError {
	return &UserError{
		Code: ErrCodeSectionNotFound,
		Message: fmt.Sprintf(
			"Section %d does not exist for %s during %s.\n"+
				"_Note: Do not put Evening Exam sections (type \"MID\") into your schedule here._",
			section, course, termName),
		Category: CategoryNotFound,
	}
}

// NewNoSuchSectionError はセクション検索で該当がない場合のエラーを生成する。
func NewNoSuchSectionError(course Course, section int, termName string) *UserError {
	return &UserError{
		Code:     ErrCodeSectionNotFound,
		Message:  fmt.Sprintf("Section %d of %s does not exist during %s.", section, course, termName),
		Category: CategoryNotFound,
	}
}

// NewClassNotFoundError はクラス番号が学期内に存在しない場合のエラーを生成する。
func NewClassNotFoundError(termName string) *UserError {
	return &UserError{
		Code:     ErrCodeSectionNotFound,
		Message:  fmt.Sprintf("Class does not exist during %s", termName),
		Category: CategoryNotFound,
	}
}

// NewMidtermSectionError は中間試験セクションを無視する場合のエラーを生成する。
func NewMidtermSectionError() *UserError {
	return &UserError{
		Code:     ErrCodeSectionNotFound,
		Message:  "Class is a midterm section. Ignoring it",
		Category: CategoryNotFound,
	}
}

// NewEmptyScheduleError はスケジュールが空の場合のエラーを生成する。
func NewEmptyScheduleError(termName string) *UserError {
	return &UserError{
		Code: ErrCodeEmptySchedule,
		Message: fmt.Sprintf(
			":x: Your %s schedule is empty. Use `/schedule` or `/schedule-set-classes` to add classes to it.",
			termName),
		Category: CategoryValidation,
	}
}

// NewScheduleFullError はスケジュールが上限に達している場合のエラーを生成する。
func NewScheduleFullError(max int) *UserError {
	return &UserError{
		Code:     ErrCodeScheduleFull,
		Message:  fmt.Sprintf(":x: Your schedule already has %d classes, the maximum allowed.", max),
		Category: CategoryValidation,
	}
}

// NewRateLimitedError はユーザーの操作が速すぎる場合のエラーを生成する。
func NewRateLimitedError() *UserError {
	return &UserError{
		Code:     ErrCodeRateLimited,
		Message:  ":snail: You're doing that too fast. Please wait a moment and try again.",
		Category: CategorySystem,
	}
}

// NewMissingOptionError は必須オプションが欠けている場合のエラーを生成する。
func NewMissingOptionError(name string) *UserError {
	return &UserError{
		Code:     ErrCodeMissingOption,
		Message:  fmt.Sprintf("Missing required option `%s`.", name),
		Category: CategoryValidation,
	}
}
