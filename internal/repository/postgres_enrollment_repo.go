package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/reginald/internal/model"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した履修登録リポジトリ。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// ExistsForTerm は学生がその学期に1件以上登録しているかを返す。
func (r *PostgresEnrollmentRepo) ExistsForTerm(ctx context.Context, studentID int64, term int) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND term = $2)`,
		studentID, term,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollments for term: %w", err)
	}
	return exists, nil
}

// CountForTerm は学生の学期内の登録数を返す。
func (r *PostgresEnrollmentRepo) CountForTerm(ctx context.Context, studentID int64, term int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND term = $2`,
		studentID, term,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return count, nil
}

// ExistsForCourse は学生がその学期にコースを登録しているかを返す。
func (r *PostgresEnrollmentRepo) ExistsForCourse(ctx context.Context, studentID int64, term int, courseCode string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM enrollments WHERE student_id = $1 AND term = $2 AND course_code = $3
		)`,
		studentID, term, courseCode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment for course: %w", err)
	}
	return exists, nil
}

// ListByStudentTerm は学生の学期内の登録を作成順に返す。
func (r *PostgresEnrollmentRepo) ListByStudentTerm(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, term, course_code, section, created_at
		 FROM enrollments
		 WHERE student_id = $1 AND term = $2
		 ORDER BY created_at, course_code, section`,
		studentID, term,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := []model.Enrollment{}
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Term, &e.CourseCode, &e.Section, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}
	return enrollments, nil
}

// CreateIfAbsent は同じ組の行がない場合のみ作成する。
// 存在確認と挿入は1文で行うが、一意制約は張っていない。
func (r *PostgresEnrollmentRepo) CreateIfAbsent(ctx context.Context, e *model.Enrollment) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, term, course_code, section, created_at)
		 SELECT $1::uuid, $2::bigint, $3::integer, $4::varchar, $5::integer, $6::timestamptz
		 WHERE NOT EXISTS (
			SELECT 1 FROM enrollments
			WHERE student_id = $2 AND term = $3 AND course_code = $4 AND section = $5
		 )`,
		e.ID, e.StudentID, e.Term, e.CourseCode, e.Section, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert enrollment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete は一致する登録を削除する。
func (r *PostgresEnrollmentRepo) Delete(ctx context.Context, studentID int64, term int, courseCode string, section int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM enrollments
		 WHERE student_id = $1 AND term = $2 AND course_code = $3 AND section = $4`,
		studentID, term, courseCode, section,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete enrollment: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByStudentTerm は学生の学期内の登録をすべて削除する。
func (r *PostgresEnrollmentRepo) DeleteByStudentTerm(ctx context.Context, studentID int64, term int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM enrollments WHERE student_id = $1 AND term = $2`,
		studentID, term,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear enrollments: %w", err)
	}
	return result.RowsAffected()
}

// ListNotifiablePeers は通知を受け取る設定の他の学生の登録を返す。
func (r *PostgresEnrollmentRepo) ListNotifiablePeers(ctx context.Context, e *model.Enrollment) ([]model.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.student_id, e.term, e.course_code, e.section, e.created_at
		 FROM enrollments e
		 JOIN users u ON u.id = e.student_id
		 WHERE e.student_id <> $1 AND e.course_code = $2 AND e.term >= $3 AND u.notify_peers
		 ORDER BY e.student_id, e.term, e.section`,
		e.StudentID, e.CourseCode, e.Term,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifiable peers: %w", err)
	}
	defer rows.Close()

	var peers []model.Enrollment
	for rows.Next() {
		var p model.Enrollment
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Term, &p.CourseCode, &p.Section, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan peer enrollment: %w", err)
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate peer enrollments: %w", err)
	}
	return peers, nil
}

// ListCoursemates は同じ学期に同じコースを登録している他の学生を返す。
func (r *PostgresEnrollmentRepo) ListCoursemates(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT p.course_code, p.student_id
		 FROM enrollments p
		 WHERE p.student_id <> $1 AND p.term = $2 AND EXISTS (
			SELECT 1 FROM enrollments s
			WHERE s.student_id = $1 AND s.course_code = p.course_code AND s.term = p.term
		 )
		 ORDER BY p.course_code, p.student_id`,
		studentID, term,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list coursemates: %w", err)
	}
	defer rows.Close()

	var peers []model.Enrollment
	for rows.Next() {
		p := model.Enrollment{Term: term}
		if err := rows.Scan(&p.CourseCode, &p.StudentID); err != nil {
			return nil, fmt.Errorf("failed to scan coursemate: %w", err)
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate coursemates: %w", err)
	}
	return peers, nil
}

// ListSectionPeers は同じ学期・コース・セクションを登録している他の学生を返す。
func (r *PostgresEnrollmentRepo) ListSectionPeers(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT p.course_code, p.section, p.student_id
		 FROM enrollments p
		 WHERE p.student_id <> $1 AND p.term = $2 AND EXISTS (
			SELECT 1 FROM enrollments s
			WHERE s.student_id = $1 AND s.course_code = p.course_code
				AND s.term = p.term AND s.section = p.section
		 )
		 ORDER BY p.course_code, p.section, p.student_id`,
		studentID, term,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list section peers: %w", err)
	}
	defer rows.Close()

	var peers []model.Enrollment
	for rows.Next() {
		p := model.Enrollment{Term: term}
		if err := rows.Scan(&p.CourseCode, &p.Section, &p.StudentID); err != nil {
			return nil, fmt.Errorf("failed to scan section peer: %w", err)
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate section peers: %w", err)
	}
	return peers, nil
}

// ListAlumni は学生がその学期に登録しているコースを過去の学期に登録していた他の学生を返す。
func (r *PostgresEnrollmentRepo) ListAlumni(ctx context.Context, studentID int64, term int) ([]model.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT e.course_code, e.term, e.student_id
		 FROM enrollments e
		 WHERE e.student_id <> $1 AND e.term < $2 AND EXISTS (
			SELECT 1 FROM enrollments f
			WHERE f.student_id = $1 AND f.course_code = e.course_code AND f.term = $2
		 )
		 ORDER BY e.course_code, e.term, e.student_id`,
		studentID, term,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list alumni: %w", err)
	}
	defer rows.Close()

	var peers []model.Enrollment
	for rows.Next() {
		var p model.Enrollment
		if err := rows.Scan(&p.CourseCode, &p.Term, &p.StudentID); err != nil {
			return nil, fmt.Errorf("failed to scan alumnus: %w", err)
		}
		peers = append(peers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alumni: %w", err)
	}
	return peers, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
