package service

import (
	"context"
	"log/slog"
	"time"

	"khamriver-server/internal/modules/waterquality/export"
	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/mqtt"
)

type Options struct {
	PageSize  int
	Location  *time.Location
	Publisher mqtt.ChangePublisher
	Logger    *slog.Logger
}

type Service struct {
	repository repository.WaterQualityRepository
	paginator  query.Paginator
	composer   query.Composer
	location   *time.Location
	publisher  mqtt.ChangePublisher
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repository repository.WaterQualityRepository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Publisher == nil {
		opts.Publisher = mqtt.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repository: repository,
		paginator:  query.Paginator{Store: repository, PageSize: opts.PageSize},
		composer:   query.Composer{Location: opts.Location},
		location:   opts.Location,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Paginator exposes the service's paginator for interactive browsing.
func (s *Service) Paginator() query.Paginator { return s.paginator }

func (s *Service) Composer() query.Composer { return s.composer }

func (s *Service) Location() *time.Location { return s.location }

func (s *Service) exporter(format export.Format) export.Exporter {
	return export.Exporter{Format: format, Location: s.location}
}

// publish sends a change event. Failures are logged and never returned.
func (s *Service) publish(ctx context.Context, entity string, action mqtt.Action, id, stationID string) {
	ev := mqtt.ChangeEvent{Entity: entity, Action: action, ID: id, StationID: stationID, At: s.now().UTC()}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		s.logger.Warn("change event not published", "entity", entity, "action", action, "id", id, "error", err)
	}
}
