package service

import (
	"context"
	"errors"
	"fmt"

	"khamriver-server/internal/modules/waterquality/query"
	"khamriver-server/internal/modules/waterquality/repository"
	"khamriver-server/internal/modules/waterquality/types"
	"khamriver-server/internal/modules/waterquality/validate"
	"khamriver-server/internal/mqtt"
)

const (
	entityStation = "station"
	entityReading = "reading"
)

// StationInUseError refuses deletion of a station that readings still reference.
type StationInUseError struct {
	Count int
}

func (e *StationInUseError) Error() string {
	return fmt.Sprintf("This station has %d water quality readings associated with it. Delete the readings first.", e.Count)
}

func (s *Service) CreateStation(ctx context.Context, in validate.StationInput) (types.Station, error) {
	st, err := validate.Station(in)
	if err != nil {
		return types.Station{}, err
	}
	st, err = s.repository.CreateStation(ctx, st)
	if err != nil {
		return types.Station{}, err
	}
	s.publish(ctx, entityStation, mqtt.ActionCreated, st.ID, st.ID)
	return st, nil
}

func (s *Service) UpdateStation(ctx context.Context, id string, in validate.StationInput) (types.Station, error) {
	st, err := validate.Station(in)
	if err != nil {
		return types.Station{}, err
	}
	st.ID = id
	st, err = s.repository.UpdateStation(ctx, st)
	if err != nil {
		return types.Station{}, err
	}
	s.publish(ctx, entityStation, mqtt.ActionUpdated, st.ID, st.ID)
	return st, nil
}

// DeleteStation counts the station's readings first and refuses with a
// *StationInUseError when there are any.
func (s *Service) DeleteStation(ctx context.Context, id string) error {
	if _, err := s.repository.GetStation(ctx, id); err != nil {
		return err
	}
	n, err := s.repository.CountReadings(ctx, query.ReadingQuery{StationID: id})
	if err != nil {
		return fmt.Errorf("count readings: %w", err)
	}
	if n > 0 {
		return &StationInUseError{Count: n}
	}
	if err := s.repository.DeleteStation(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, entityStation, mqtt.ActionDeleted, id, id)
	return nil
}

func (s *Service) CreateReading(ctx context.Context, in validate.ReadingInput) (types.Reading, error) {
	rd, err := s.validReading(ctx, in)
	if err != nil {
		return types.Reading{}, err
	}
	rd, err = s.repository.CreateReading(ctx, rd)
	if err != nil {
		return types.Reading{}, err
	}
	s.publish(ctx, entityReading, mqtt.ActionCreated, rd.ID, rd.StationID)
	return rd, nil
}

func (s *Service) UpdateReading(ctx context.Context, id string, in validate.ReadingInput) (types.Reading, error) {
	rd, err := s.validReading(ctx, in)
	if err != nil {
		return types.Reading{}, err
	}
	rd.ID = id
	rd, err = s.repository.UpdateReading(ctx, rd)
	if err != nil {
		return types.Reading{}, err
	}
	s.publish(ctx, entityReading, mqtt.ActionUpdated, rd.ID, rd.StationID)
	return rd, nil
}

func (s *Service) DeleteReading(ctx context.Context, id string) error {
	rd, err := s.repository.GetReading(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repository.DeleteReading(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, entityReading, mqtt.ActionDeleted, id, rd.StationID)
	return nil
}

// validReading validates in and checks that its station exists.
func (s *Service) validReading(ctx context.Context, in validate.ReadingInput) (types.Reading, error) {
	rd, err := validate.Reading(in)
	if err != nil {
		return types.Reading{}, err
	}
	if _, err := s.repository.GetStation(ctx, rd.StationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return types.Reading{}, &validate.Error{Field: "station_id", Message: "Please select a station."}
		}
		return types.Reading{}, err
	}
	return rd, nil
}
