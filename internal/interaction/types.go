// Package interaction はスケジュール機能のインタラクションフローを制御する。
// スラッシュコマンド、ボタン、モーダル、セレクトメニューのイベントをディスパッチテーブルで処理し、
// 開いているスケジュール表示を登録簿で管理して変更時に再描画する。
package interaction

import (
	"context"
	"strconv"
	"strings"
)

// Kind はインタラクションの種別。
type Kind int

const (
	KindCommand Kind = iota
	KindButton
	KindModalSubmit
	KindSelect
)

// String はログ用の種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindButton:
		return "button"
	case KindModalSubmit:
		return "modal"
	case KindSelect:
		return "select"
	default:
		return "unknown"
	}
}

// Request はトランスポートから受け取った1件のインタラクション。
type Request struct {
	Kind     Kind
	Name     string // コマンドの場合はコマンド名、それ以外はカスタムIDの全体
	UserID   int64
	Username string // サーバー内の表示名

	Options map[string]string // コマンドのオプション値
	Fields  map[string]string // モーダルの入力値
	Values  []string          // セレクトメニューの選択値
}

// Tag はカスタムIDを":"で分割した先頭の要素を返す。
func (r *Request) Tag() string {
	tag, _, _ := strings.Cut(r.Name, ":")
	return tag
}

// Params はカスタムIDのタグ以降の要素を返す。
func (r *Request) Params() []string {
	tokens := strings.Split(r.Name, ":")
	return tokens[1:]
}

// Option は名前付きオプションの値を返す。
func (r *Request) Option(name string) (string, bool) {
	v, ok := r.Options[name]
	return v, ok && v != ""
}

// BoolOption は真偽値オプションを返す。
func (r *Request) BoolOption(name string) (bool, bool) {
	v, ok := r.Option(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

// IntOption は整数オプションを返す。
func (r *Request) IntOption(name string) (int, bool) {
	v, ok := r.Option(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// UserOption はユーザー指定オプションのIDを返す。
func (r *Request) UserOption(name string) (int64, bool) {
	v, ok := r.Option(name)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil
}

// Responder は1件のインタラクションに対する応答手段。
// Editは最初の応答を置き換える。Updateはコンポーネントが付いたメッセージを置き換える。
type Responder interface {
	Reply(ctx context.Context, resp Response) error
	Defer(ctx context.Context, ephemeral bool) error
	Edit(ctx context.Context, resp Response) error
	Update(ctx context.Context, resp Response) error
	FollowUp(ctx context.Context, resp Response) error
	ShowModal(ctx context.Context, modal Modal) error
}

// DirectMessenger はユーザーにダイレクトメッセージを送る。
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, userID int64, content string) error
	SendDirectFiles(ctx context.Context, userID int64, content string, files []File) error
}

// Response はメッセージの内容。編集時は全フィールドで置き換える。
type Response struct {
	Content    string
	Ephemeral  bool
	Embeds     []Embed
	Components []ActionRow
	Files      []File
}

// File はメッセージに添付するローカルファイル。
type File struct {
	Name string
	Path string
}

// Embed は埋め込みメッセージ。
type Embed struct {
	Title       string
	Description string
	Author      *EmbedAuthor
	Fields      []EmbedField
	Image       string // attachment://{name} 形式も可
}

// EmbedAuthor は埋め込みの著者欄。
type EmbedAuthor struct {
	Name    string
	URL     string
	IconURL string
}

// EmbedField は埋め込みの1フィールド。
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// ButtonStyle はボタンの見た目。
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// ActionRow はボタン群またはセレクトメニュー1つを持つ行。
type ActionRow struct {
	Buttons []Button
	Select  *SelectMenu
}

// Button はメッセージに付くボタン。
type Button struct {
	CustomID string
	Label    string
	Emoji    string
	Style    ButtonStyle
	Disabled bool
}

// SelectMenu は文字列のセレクトメニュー。
type SelectMenu struct {
	CustomID    string
	Placeholder string
	Options     []SelectOption
}

// SelectOption はセレクトメニューの選択肢。
type SelectOption struct {
	Label       string
	Description string
	Value       string
}

// Modal は入力フォーム。
type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// TextInput はモーダルの1行入力。
type TextInput struct {
	CustomID    string
	Label       string
	Placeholder string
	Required    bool
}

// OptionType はコマンドオプションの型。
type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionInteger
	OptionBoolean
	OptionUser
)

// OptionSpec はコマンドオプションの定義。
type OptionSpec struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
	Choices     []string
}

// Handler はインタラクションを処理する。
type Handler func(ctx context.Context, req *Request, r Responder) error

// Command はスラッシュコマンドの定義。
// Checkは状態を変更する前の検証で、UserErrorを返すとRunは呼ばれない。
type Command struct {
	Name        string
	Description string
	Options     []OptionSpec
	Check       func(ctx context.Context, req *Request) error
	Run         Handler
}
