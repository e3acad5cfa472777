// Package enrollment は学生の履修登録を管理するドメインロジックを提供する。
// 保存済みの登録はカタログクライアントを通してセクション情報に解決される。
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/reginald/internal/model"
	"github.com/hitoshi/reginald/internal/repository"
)

// SectionResolver はコースとセクション番号からセクション情報を解決する。
type SectionResolver interface {
	GetSectionBySectionNumber(ctx context.Context, course model.Course, sectionNumber, term int) (*model.Section, error)
}

// Store は履修登録のサービス層。
type Store struct {
	users       repository.UserRepository
	enrollments repository.EnrollmentRepository
	sections    SectionResolver
	logger      *slog.Logger
	now         func() time.Time
}

// NewStore はStoreの新しいインスタンスを生成する。
func NewStore(
	users repository.UserRepository,
	enrollments repository.EnrollmentRepository,
	sections SectionResolver,
	logger *slog.Logger,
) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		users:       users,
		enrollments: enrollments,
		sections:    sections,
		logger:      logger,
		now:         time.Now,
	}
}

// HasEnrollments は学生がその学期に1件以上登録しているかを返す。
func (s *Store) HasEnrollments(ctx context.Context, studentID int64, term int) (bool, error) {
	ok, err := s.enrollments.ExistsForTerm(ctx, studentID, term)
	if err != nil {
		return false, fmt.Errorf("登録の確認に失敗しました: %w", err)
	}
	return ok, nil
}

// CountEnrollments は学期内の登録数を返す。
func (s *Store) CountEnrollments(ctx context.Context, studentID int64, term int) (int, error) {
	n, err := s.enrollments.CountForTerm(ctx, studentID, term)
	if err != nil {
		return 0, fmt.Errorf("登録数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// EnrolledIn は学生がその学期にコースのいずれかのセクションを登録しているかを返す。
func (s *Store) EnrolledIn(ctx context.Context, studentID int64, term int, course model.Course) (bool, error) {
	ok, err := s.enrollments.ExistsForCourse(ctx, studentID, term, course.String())
	if err != nil {
		return false, fmt.Errorf("コース登録の確認に失敗しました: %w", err)
	}
	return ok, nil
}

// GetEnrollments は学期内の登録をセクション情報に解決して返す。
// 解決は並行に行い、結果は保存順を保つ。
// 保存済みのコースコードがパースできない場合はErrCorruptCourseCodeを返す。
// カタログに存在しなくなったセクションは警告ログを出して除外する。
func (s *Store) GetEnrollments(ctx context.Context, studentID int64, term int) ([]model.CourseSection, error) {
	rows, err := s.enrollments.ListByStudentTerm(ctx, studentID, term)
	if err != nil {
		return nil, fmt.Errorf("登録一覧の取得に失敗しました: %w", err)
	}

	courses := make([]model.Course, len(rows))
	for i, row := range rows {
		course, ok := model.ParseCourse(row.CourseCode)
		if !ok {
			return nil, fmt.Errorf("%w: %q (enrollment %s)", model.ErrCorruptCourseCode, row.CourseCode, row.ID)
		}
		courses[i] = course
	}

	resolved := make([]*model.Section, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			section, err := s.sections.GetSectionBySectionNumber(gctx, courses[i], row.Section, term)
			if err != nil {
				return fmt.Errorf("セクションの解決に失敗しました (%s %d): %w", courses[i], row.Section, err)
			}
			resolved[i] = section
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]model.CourseSection, 0, len(rows))
	for i, section := range resolved {
		if section == nil {
			s.logger.Warn("登録済みセクションがカタログに存在しません",
				slog.Int64("user_id", studentID),
				slog.Int("term", term),
				slog.String("course", courses[i].String()),
				slog.Int("section", rows[i].Section),
			)
			continue
		}
		result = append(result, model.CourseSection{Course: courses[i], Section: section})
	}
	return result, nil
}

// ListEnrollments は学期内の登録行をセクション情報に解決せずに返す。
// カタログから消えたセクションの行も含む。
func (s *Store) ListEnrollments(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error) {
	rows, err := s.enrollments.ListByStudentTerm(ctx, studentID, term)
	if err != nil {
		return nil, fmt.Errorf("登録一覧の取得に失敗しました: %w", err)
	}
	return rows, nil
}

// AddEnrollment は登録を追加する。
// 同じ組がすでに存在する場合はnilを返し、新しい行は作らない。
func (s *Store) AddEnrollment(ctx context.Context, studentID int64, term int, course model.Course, section int) (*model.Enrollment, error) {
	e := &model.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		Term:       term,
		CourseCode: course.String(),
		Section:    section,
		CreatedAt:  s.now(),
	}
	created, err := s.enrollments.CreateIfAbsent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("登録の作成に失敗しました: %w", err)
	}
	if !created {
		return nil, nil
	}
	return e, nil
}

// RemoveEnrollment は一致する登録を削除する。
func (s *Store) RemoveEnrollment(ctx context.Context, studentID int64, term int, course model.Course, section int) error {
	if _, err := s.enrollments.Delete(ctx, studentID, term, course.String(), section); err != nil {
		return fmt.Errorf("登録の削除に失敗しました: %w", err)
	}
	return nil
}

// ClearEnrollment は学期内の登録をすべて削除する。
func (s *Store) ClearEnrollment(ctx context.Context, studentID int64, term int) error {
	if _, err := s.enrollments.DeleteByStudentTerm(ctx, studentID, term); err != nil {
		return fmt.Errorf("登録のクリアに失敗しました: %w", err)
	}
	return nil
}

// EnsureUser はユーザーが存在しない場合に作成する。
func (s *Store) EnsureUser(ctx context.Context, userID int64, username string) error {
	created, err := s.users.InsertIfAbsent(ctx, &model.User{
		ID:          userID,
		Username:    username,
		NotifyPeers: true,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	if created {
		s.logger.Info("ユーザーを作成しました", slog.Int64("user_id", userID))
	}
	return nil
}

// SetNotifyPeers はピア通知の受信設定を更新する。
func (s *Store) SetNotifyPeers(ctx context.Context, userID int64, notify bool) error {
	if err := s.users.UpdateNotifyPeers(ctx, userID, notify); err != nil {
		return fmt.Errorf("通知設定の更新に失敗しました: %w", err)
	}
	return nil
}

// PeerInfo は学期内のコースメイト、セクションメイト、過去の履修者を返す。
func (s *Store) PeerInfo(ctx context.Context, studentID int64, term int) (*model.PeerInfo, error) {
	var coursemates, sectionPeers, alumni []model.Enrollment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		coursemates, err = s.enrollments.ListCoursemates(gctx, studentID, term)
		if err != nil {
			return fmt.Errorf("コースメイトの取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sectionPeers, err = s.enrollments.ListSectionPeers(gctx, studentID, term)
		if err != nil {
			return fmt.Errorf("セクションメイトの取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		alumni, err = s.enrollments.ListAlumni(gctx, studentID, term)
		if err != nil {
			return fmt.Errorf("過去の履修者の取得に失敗しました: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	info := &model.PeerInfo{
		Coursemates:  map[string][]int64{},
		Sectionmates: map[string][]model.SectionPeer{},
		Alumni:       map[string][]model.AlumnusPeer{},
	}
	for _, p := range coursemates {
		info.Coursemates[p.CourseCode] = append(info.Coursemates[p.CourseCode], p.StudentID)
	}
	for _, p := range sectionPeers {
		info.Sectionmates[p.CourseCode] = append(info.Sectionmates[p.CourseCode],
			model.SectionPeer{StudentID: p.StudentID, Section: p.Section})
	}
	for _, p := range alumni {
		info.Alumni[p.CourseCode] = append(info.Alumni[p.CourseCode],
			model.AlumnusPeer{StudentID: p.StudentID, Term: p.Term})
	}
	return info, nil
}
