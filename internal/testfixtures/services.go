package testfixtures

import (
	"io"
	"log/slog"
	"time"

	"github.com/example/liveclass-scheduler/internal/application"
	"github.com/example/liveclass-scheduler/internal/recurrence"
	"github.com/example/liveclass-scheduler/internal/scheduler"
)

// StreamSecret signs stream tokens issued by factory built services.
const StreamSecret = "fixture-stream-secret"

// ServiceFactory builds application services over a SQLiteHarness with a
// shared clock, id generator and the Cairo reference timezone.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Engine      *recurrence.Engine
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory.
type ServiceFactoryOption func(*ServiceFactory)

func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Engine:      recurrence.NewEngine(Cairo),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

func WithClock(clock *Clock) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Clock = clock }
}

func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(f *ServiceFactory) { f.Logger = logger }
}

// NewLiveSessionService wires a LiveSessionService to the harness repositories.
func (f *ServiceFactory) NewLiveSessionService(h *SQLiteHarness) *application.LiveSessionService {
	tokens, err := application.NewStreamTokens(StreamSecret, time.Hour)
	if err != nil {
		panic(err)
	}
	return application.NewLiveSessionService(application.LiveSessionDeps{
		Courses:         h.Courses,
		Enrollments:     h.Enrollments,
		Sessions:        h.Sessions,
		Attendance:      h.Attendance,
		Tokens:          tokens,
		Resolver:        scheduler.NewResolver(f.Engine),
		IDGenerator:     f.IDGenerator.NextFunc(),
		Now:             f.Clock.NowFunc(),
		UpcomingHorizon: 14,
		Logger:          f.Logger,
	})
}

// NewScheduleService wires a ScheduleService to the harness repositories.
func (f *ServiceFactory) NewScheduleService(h *SQLiteHarness) *application.ScheduleService {
	return application.NewScheduleService(application.ScheduleDeps{
		Courses:     h.Courses,
		Enrollments: h.Enrollments,
		Sessions:    h.Sessions,
		Engine:      f.Engine,
		IDGenerator: f.IDGenerator.NextFunc(),
		Now:         f.Clock.NowFunc(),
		Logger:      f.Logger,
	})
}

// NewMaterializer wires a Materializer; locker may be nil.
func (f *ServiceFactory) NewMaterializer(h *SQLiteHarness, locker application.Locker) *application.Materializer {
	return application.NewMaterializer(h.Courses, h.Sessions, locker, f.Engine, 14, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}
