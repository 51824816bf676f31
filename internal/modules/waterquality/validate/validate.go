// Package validate checks station and reading submissions before they are
// written and converts them into domain records.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"khamriver-server/internal/modules/waterquality/types"
)

const DateLayout = "2006-01-02"

// Error is a user-correctable rejection naming the first offending field.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// IsError reports whether err is a validation rejection.
func IsError(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		v := fl.Field().Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	})
}

type StationInput struct {
	Name             string   `json:"name" validate:"required"`
	Number           string   `json:"number" validate:"required"`
	Frequency        string   `json:"frequency" validate:"required"`
	Status           string   `json:"status" validate:"omitempty,oneof=active inactive maintenance"`
	Latitude         *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude        *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	ContactPerson    *string  `json:"contact_person"`
	InstallationDate *string  `json:"installation_date" validate:"omitempty,datetime=2006-01-02"`
	Description      *string  `json:"description"`
}

// ReadingInput uses pointers so that a missing measurement can be told apart
// from a zero one.
type ReadingInput struct {
	StationID       string     `json:"station_id" validate:"required"`
	Timestamp       *time.Time `json:"timestamp"`
	PH              *float64   `json:"ph_level" validate:"required,finite,gte=0,lte=14"`
	Temperature     *float64   `json:"temperature" validate:"required,finite"`
	Turbidity       *float64   `json:"turbidity" validate:"required,finite"`
	TDS             *float64   `json:"total_dissolved_solids" validate:"required,finite"`
	EC              *float64   `json:"ec" validate:"required,finite"`
	DissolvedOxygen *float64   `json:"dissolved_oxygen" validate:"omitempty,finite"`
	Conductivity    *float64   `json:"conductivity" validate:"omitempty,finite"`
	CollectorName   *string    `json:"collector_name"`
	Notes           *string    `json:"notes"`
}

// Station validates in and returns the record to store. Status defaults to
// active. ID and timestamps are left to the caller.
func Station(in StationInput) (types.Station, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Number = strings.TrimSpace(in.Number)
	in.Frequency = strings.TrimSpace(in.Frequency)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.InstallationDate = optionalString(in.InstallationDate)

	if err := check(in); err != nil {
		return types.Station{}, err
	}

	s := types.Station{
		Name:          in.Name,
		Number:        in.Number,
		Frequency:     in.Frequency,
		Status:        types.StationStatus(in.Status),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		ContactPerson: optionalString(in.ContactPerson),
		Description:   optionalString(in.Description),
	}
	if s.Status == types.StatusUnset {
		s.Status = types.StatusActive
	}
	if in.InstallationDate != nil {
		d, err := time.Parse(DateLayout, *in.InstallationDate)
		if err != nil {
			return types.Station{}, &Error{Field: "installation_date", Message: "installation date must be YYYY-MM-DD."}
		}
		s.InstallationDate = &d
	}
	return s, nil
}

// Reading validates in and returns the record to store. A missing timestamp
// stays zero for the caller to fill.
func Reading(in ReadingInput) (types.Reading, error) {
	in.StationID = strings.TrimSpace(in.StationID)

	if err := check(in); err != nil {
		return types.Reading{}, err
	}

	r := types.Reading{
		StationID:       in.StationID,
		PH:              *in.PH,
		Temperature:     *in.Temperature,
		Turbidity:       *in.Turbidity,
		TDS:             *in.TDS,
		EC:              *in.EC,
		DissolvedOxygen: in.DissolvedOxygen,
		Conductivity:    in.Conductivity,
		CollectorName:   optionalString(in.CollectorName),
		Notes:           optionalString(in.Notes),
	}
	if in.Timestamp != nil {
		r.Timestamp = *in.Timestamp
	}
	return r, nil
}

// check runs the struct tags and reduces the result to one *Error. Missing
// fields win over out-of-range ones; otherwise field order decides.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}
	first := verrs[0]
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			first = fe
			break
		}
	}
	return &Error{Field: first.Field(), Message: message(first)}
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if field == "station_id" {
			return "Please select a station."
		}
		return fmt.Sprintf("Please provide a value for %s.", label(field))
	case "gte", "lte":
		switch field {
		case "ph_level":
			return "pH level must be between 0 and 14."
		case "latitude":
			return "latitude must be between -90 and 90."
		case "longitude":
			return "longitude must be between -180 and 180."
		}
	case "oneof":
		return fmt.Sprintf("%s must be one of %s.", label(field), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be YYYY-MM-DD.", label(field))
	case "finite":
		return fmt.Sprintf("%s must be a number.", label(field))
	}
	return fmt.Sprintf("%s is invalid.", label(field))
}

func label(field string) string {
	if field == "ph_level" {
		return "pH level"
	}
	return strings.ReplaceAll(field, "_", " ")
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
