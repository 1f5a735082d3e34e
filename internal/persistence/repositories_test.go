package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
	"github.com/example/liveclass-scheduler/internal/testfixtures"
)

func sessionFor(course testfixtures.CourseFixture, id, date, status string) persistence.LiveSession {
	now := testfixtures.ReferenceTime().UTC()
	return persistence.LiveSession{
		ID:          id,
		CourseID:    course.Course.ID,
		SessionDate: recurrence.MustDate(date),
		StartTime:   recurrence.MustTimeOfDay("14:00"),
		EndTime:     recurrence.MustTimeOfDay("18:00"),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCourseRepository(t *testing.T) {
	t.Parallel()

	t.Run("round trips courses and slots", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)
		course := testfixtures.NewCourseFixture(
			testfixtures.WithSlot(time.Tuesday, "14:00", "18:00"),
			testfixtures.WithSlot(time.Saturday, "09:30", "11:00"),
		)
		harness.SeedCourse(t, course)

		got, err := harness.Courses.GetCourse(ctx, course.Course.ID)
		if err != nil {
			t.Fatalf("GetCourse failed: %v", err)
		}
		if got.TeacherID != course.Course.TeacherID || got.StartDate != course.Course.StartDate || !got.Active {
			t.Fatalf("unexpected course %+v", got)
		}

		slots, err := harness.Courses.ListSlots(ctx, course.Course.ID)
		if err != nil {
			t.Fatalf("ListSlots failed: %v", err)
		}
		if len(slots) != 2 || slots[1].Day != time.Saturday || slots[1].StartTime.String() != "09:30:00" {
			t.Fatalf("unexpected slots %+v", slots)
		}

		if _, err := harness.Courses.GetCourse(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := harness.Courses.CreateCourse(ctx, course.Course); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("lists live courses whose window is open", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)

		open := testfixtures.NewCourseFixture()
		future := testfixtures.NewCourseFixture(testfixtures.WithWindow("2024-05-01", "2024-06-30"))
		ended := testfixtures.NewCourseFixture(testfixtures.WithWindow("2023-01-01", "2023-12-31"))
		inactive := testfixtures.NewCourseFixture(testfixtures.WithInactive())
		recorded := testfixtures.NewCourseFixture(testfixtures.WithKind("recorded"))
		for _, c := range []testfixtures.CourseFixture{open, future, ended, inactive, recorded} {
			harness.SeedCourse(t, c)
		}

		courses, err := harness.Courses.ListLiveCourses(ctx, recurrence.MustDate("2024-01-09"))
		if err != nil {
			t.Fatalf("ListLiveCourses failed: %v", err)
		}
		ids := map[string]bool{}
		for _, c := range courses {
			ids[c.ID] = true
		}
		if len(ids) != 2 || !ids[open.Course.ID] || !ids[future.Course.ID] {
			t.Fatalf("unexpected live courses %v", ids)
		}
	})

	t.Run("replaces the schedule atomically", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)
		course := testfixtures.NewCourseFixture()
		harness.SeedCourse(t, course)

		window := recurrence.Window{StartDate: recurrence.MustDate("2024-02-01"), EndDate: recurrence.MustDate("2024-02-29")}
		bad := []persistence.CourseSlot{
			{ID: "s1", Day: time.Monday, StartTime: recurrence.MustTimeOfDay("09:00"), EndTime: recurrence.MustTimeOfDay("10:00")},
			{ID: "s1", Day: time.Friday, StartTime: recurrence.MustTimeOfDay("09:00"), EndTime: recurrence.MustTimeOfDay("10:00")},
		}
		if err := harness.Courses.ReplaceSchedule(ctx, course.Course.ID, window, bad, time.Now()); err == nil {
			t.Fatal("expected duplicate slot ids to fail")
		}
		slots, err := harness.Courses.ListSlots(ctx, course.Course.ID)
		if err != nil || len(slots) != 1 || slots[0].Day != time.Tuesday {
			t.Fatalf("expected original slot to survive rollback, got %+v %v", slots, err)
		}
		got, err := harness.Courses.GetCourse(ctx, course.Course.ID)
		if err != nil || got.StartDate != course.Course.StartDate {
			t.Fatalf("expected original window to survive rollback, got %+v %v", got, err)
		}

		if err := harness.Courses.ReplaceSchedule(ctx, "missing", window, nil, time.Now()); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		inverted := recurrence.Window{StartDate: window.EndDate, EndDate: window.StartDate}
		if err := harness.Courses.ReplaceSchedule(ctx, course.Course.ID, inverted, nil, time.Now()); !errors.Is(err, persistence.ErrConstraintViolation) {
			t.Fatalf("expected ErrConstraintViolation, got %v", err)
		}
	})
}

func TestEnrollmentRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	first := testfixtures.NewCourseFixture(testfixtures.WithCourseID("course-a"))
	second := testfixtures.NewCourseFixture(testfixtures.WithCourseID("course-b"))
	harness.SeedCourse(t, first)
	harness.SeedCourse(t, second)
	harness.Enroll(t, "course-a", "student-1", persistence.EnrollmentActive)
	harness.Enroll(t, "course-b", "student-1", persistence.EnrollmentCancelled)

	if ok, err := harness.Enrollments.IsActivelyEnrolled(ctx, "course-a", "student-1"); err != nil || !ok {
		t.Fatalf("expected active enrollment, got %v %v", ok, err)
	}
	if ok, err := harness.Enrollments.IsActivelyEnrolled(ctx, "course-b", "student-1"); err != nil || ok {
		t.Fatalf("expected cancelled enrollment to be inactive, got %v %v", ok, err)
	}

	ids, err := harness.Enrollments.ListActiveCourseIDs(ctx, "student-1")
	if err != nil {
		t.Fatalf("ListActiveCourseIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "course-a" {
		t.Fatalf("unexpected course ids %v", ids)
	}

	err = harness.Enrollments.CreateEnrollment(ctx, persistence.Enrollment{
		ID: "enrollment-x", CourseID: "missing", StudentID: "student-1", Status: persistence.EnrollmentActive, CreatedAt: time.Now(),
	})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestLiveSessionRepository(t *testing.T) {
	t.Parallel()

	t.Run("upsert keeps the first id and refreshes status", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)
		course := testfixtures.NewCourseFixture()
		harness.SeedCourse(t, course)

		stored, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-1", "2024-01-09", "scheduled"))
		if err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
		if stored.ID != "session-1" {
			t.Fatalf("unexpected id %q", stored.ID)
		}

		again, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-2", "2024-01-09", "live"))
		if err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
		if again.ID != "session-1" || again.Status != "live" {
			t.Fatalf("expected refreshed original row, got %+v", again)
		}

		if _, err := harness.Sessions.GetSession(ctx, "session-2"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected second id to be discarded, got %v", err)
		}
	})

	t.Run("cancelled sessions stay cancelled", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)
		course := testfixtures.NewCourseFixture()
		harness.SeedCourse(t, course)

		if _, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-1", "2024-01-09", "cancelled")); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
		stored, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-9", "2024-01-09", "live"))
		if err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
		if stored.Status != "cancelled" {
			t.Fatalf("expected cancelled status to stick, got %q", stored.Status)
		}
	})

	t.Run("lists sessions by date range", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		harness := testfixtures.NewSQLiteHarness(t)
		course := testfixtures.NewCourseFixture()
		harness.SeedCourse(t, course)

		for i, date := range []string{"2024-01-23", "2024-01-09", "2024-01-16"} {
			if _, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-"+date, date, "scheduled")); err != nil {
				t.Fatalf("UpsertSession %d failed: %v", i, err)
			}
		}

		sessions, err := harness.Sessions.ListSessions(ctx, course.Course.ID, recurrence.MustDate("2024-01-09"), recurrence.MustDate("2024-01-16"))
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(sessions) != 2 || sessions[0].SessionDate.String() != "2024-01-09" || sessions[1].SessionDate.String() != "2024-01-16" {
			t.Fatalf("unexpected sessions %+v", sessions)
		}
	})
}

func TestLiveSessionRepository_DeleteSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	course := testfixtures.NewCourseFixture()
	harness.SeedCourse(t, course)
	other := testfixtures.NewCourseFixture(testfixtures.WithCourseID("course-2"))
	harness.SeedCourse(t, other)

	for _, session := range []persistence.LiveSession{
		sessionFor(course, "session-1", "2024-01-09", "scheduled"),
		sessionFor(course, "session-2", "2024-01-16", "scheduled"),
		sessionFor(other, "session-3", "2024-01-16", "scheduled"),
	} {
		if _, err := harness.Sessions.UpsertSession(ctx, session); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
	}
	if _, err := harness.Attendance.RecordAttendance(ctx, persistence.Attendance{ID: "a1", SessionID: "session-2", StudentID: "student-1", JoinedAt: testfixtures.ReferenceTime()}); err != nil {
		t.Fatalf("RecordAttendance failed: %v", err)
	}

	deleted, err := harness.Sessions.DeleteSessions(ctx, course.Course.ID, []string{"session-2", "session-3"})
	if err != nil {
		t.Fatalf("DeleteSessions failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected only the course's own session to go, deleted %d", deleted)
	}
	if _, err := harness.Sessions.GetSession(ctx, "session-3"); err != nil {
		t.Fatalf("expected other course session to remain: %v", err)
	}
	if _, err := harness.Sessions.GetSession(ctx, "session-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	records, err := harness.Attendance.ListAttendance(ctx, "session-2")
	if err != nil || len(records) != 0 {
		t.Fatalf("expected attendance to cascade, got %+v %v", records, err)
	}

	if deleted, err := harness.Sessions.DeleteSessions(ctx, course.Course.ID, nil); err != nil || deleted != 0 {
		t.Fatalf("expected empty delete to be a no-op, got %d %v", deleted, err)
	}
}

func TestAttendanceRepository_Close(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	course := testfixtures.NewCourseFixture()
	harness.SeedCourse(t, course)
	if _, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-1", "2024-01-09", "live")); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	joined := testfixtures.CairoAt("2024-01-09 14:00")
	for i, student := range []string{"student-1", "student-2", "student-3"} {
		attendance := persistence.Attendance{ID: "a" + student, SessionID: "session-1", StudentID: student, JoinedAt: joined.Add(time.Duration(i) * time.Minute)}
		if _, err := harness.Attendance.RecordAttendance(ctx, attendance); err != nil {
			t.Fatalf("RecordAttendance failed: %v", err)
		}
	}

	left := testfixtures.CairoAt("2024-01-09 15:00")
	if err := harness.Attendance.CloseAttendance(ctx, "session-1", "student-1", left); err != nil {
		t.Fatalf("CloseAttendance failed: %v", err)
	}
	if err := harness.Attendance.CloseAttendance(ctx, "session-1", "student-1", left); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a closed row, got %v", err)
	}
	if err := harness.Attendance.CloseAttendance(ctx, "session-1", "stranger", left); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing row, got %v", err)
	}

	end := testfixtures.CairoAt("2024-01-09 18:00")
	closed, err := harness.Attendance.CloseOpenAttendance(ctx, "session-1", end)
	if err != nil || closed != 2 {
		t.Fatalf("expected two open rows closed, got %d %v", closed, err)
	}

	records, err := harness.Attendance.ListAttendance(ctx, "session-1")
	if err != nil || len(records) != 3 {
		t.Fatalf("unexpected attendance %+v %v", records, err)
	}
	if !records[0].LeftAt.Equal(left) || !records[1].LeftAt.Equal(end) || !records[2].LeftAt.Equal(end) {
		t.Fatalf("unexpected leave times %+v", records)
	}

	reopened, err := harness.Attendance.RecordAttendance(ctx, persistence.Attendance{ID: "again", SessionID: "session-1", StudentID: "student-1", JoinedAt: end})
	if err != nil || !reopened.LeftAt.IsZero() {
		t.Fatalf("expected rejoin to clear left_at, got %+v %v", reopened, err)
	}
}

func TestAttendanceRepository(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	course := testfixtures.NewCourseFixture()
	harness.SeedCourse(t, course)
	if _, err := harness.Sessions.UpsertSession(ctx, sessionFor(course, "session-1", "2024-01-09", "live")); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	first := testfixtures.CairoAt("2024-01-09 13:50")
	if _, err := harness.Attendance.RecordAttendance(ctx, persistence.Attendance{ID: "a1", SessionID: "session-1", StudentID: "student-1", JoinedAt: first}); err != nil {
		t.Fatalf("RecordAttendance failed: %v", err)
	}
	rejoin := first.Add(30 * time.Minute)
	stored, err := harness.Attendance.RecordAttendance(ctx, persistence.Attendance{ID: "a2", SessionID: "session-1", StudentID: "student-1", JoinedAt: rejoin})
	if err != nil {
		t.Fatalf("RecordAttendance failed: %v", err)
	}
	if stored.ID != "a1" || !stored.JoinedAt.Equal(rejoin) {
		t.Fatalf("expected one refreshed row, got %+v", stored)
	}

	records, err := harness.Attendance.ListAttendance(ctx, "session-1")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one attendance row, got %+v %v", records, err)
	}

	_, err = harness.Attendance.RecordAttendance(ctx, persistence.Attendance{ID: "a3", SessionID: "missing", StudentID: "student-1", JoinedAt: rejoin})
	if !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}
