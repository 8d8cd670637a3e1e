package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d9705996/artisan/internal/integration"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Event is a calendar entry as exposed by the API.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	Link        string    `json:"html_link,omitempty"`
}

// EventInput describes an appointment to create.
type EventInput struct {
	Summary     string    `json:"summary" validate:"required,max=300"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	Attendees   []string  `json:"attendees" validate:"dive,email"`
}

func (s *Service) api(ctx context.Context, tenantID string) (*gcal.Service, string, error) {
	tok, conn, err := s.TokenFor(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	hc := oauth2.NewClient(s.clientCtx(ctx), oauth2.StaticTokenSource(tok))
	hc.Timeout = s.http.Timeout
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if s.apiBase != "" {
		opts = append(opts, option.WithEndpoint(s.apiBase))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("calendar client: %w", err)
	}
	return svc, conn.CalendarID(), nil
}

// ListEvents returns up to limit upcoming events starting after from.
func (s *Service) ListEvents(ctx context.Context, tenantID string, from time.Time, limit int64) ([]Event, error) {
	svc, calID, err := s.api(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	res, err := svc.Events.List(calID).
		TimeMin(from.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(limit).
		Context(ctx).Do()
	if err != nil {
		return nil, apiError(err)
	}
	out := make([]Event, 0, len(res.Items))
	for _, e := range res.Items {
		out = append(out, fromAPI(e))
	}
	return out, nil
}

// CreateEvent inserts an appointment into the tenant's selected calendar.
func (s *Service) CreateEvent(ctx context.Context, tenantID string, in EventInput) (*Event, error) {
	svc, calID, err := s.api(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	ev := &gcal.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       &gcal.EventDateTime{DateTime: in.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: in.End.Format(time.RFC3339)},
	}
	for _, a := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: a})
	}
	created, err := svc.Events.Insert(calID, ev).Context(ctx).Do()
	if err != nil {
		return nil, apiError(err)
	}
	out := fromAPI(created)
	return &out, nil
}

func fromAPI(e *gcal.Event) Event {
	out := Event{
		ID:          e.Id,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Link:        e.HtmlLink,
	}
	out.Start, out.AllDay = eventTime(e.Start)
	out.End, _ = eventTime(e.End)
	return out
}

// eventTime reads a timed or all-day boundary.
func eventTime(t *gcal.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		v, _ := time.Parse(time.RFC3339, t.DateTime)
		return v, false
	}
	v, _ := time.Parse(time.DateOnly, t.Date)
	return v, true
}

func apiError(err error) error {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return &integration.UpstreamError{Provider: provider, Status: ge.Code, Message: ge.Message}
	}
	return fmt.Errorf("%s calendar: %w", provider, err)
}
