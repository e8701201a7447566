package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/push"
)

// Alerts tells caregivers about something the elder just did. Alerts are not
// deduplicated: every call notifies.
type Alerts struct {
	subjects    SubjectReader
	deps        Deps
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewAlerts builds the on-demand caregiver alerts.
func NewAlerts(subjects SubjectReader, deps Deps, callTimeout time.Duration) *Alerts {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerts{
		subjects:    subjects,
		deps:        deps,
		callTimeout: callTimeout,
		logger:      logger.With("component", "alerts"),
	}
}

// MedicineTaken notifies caregivers that the elder took a medicine.
func (a *Alerts) MedicineTaken(ctx context.Context, subjectID, medicineID, medicineName string) (push.Report, error) {
	return a.notifyCaregivers(ctx, subjectID, "medicine_taken", func(s care.Subject) push.Payload {
		return medicineTakenPayload(s, medicineID, medicineName)
	})
}

// SOS notifies caregivers that the elder needs help.
func (a *Alerts) SOS(ctx context.Context, subjectID string, alert care.SOSAlert) (push.Report, error) {
	return a.notifyCaregivers(ctx, subjectID, "sos", func(s care.Subject) push.Payload {
		return sosPayload(s, alert)
	})
}

func (a *Alerts) notifyCaregivers(ctx context.Context, subjectID, kind string, build func(care.Subject) push.Payload) (push.Report, error) {
	if !a.deps.Notifier.Enabled() {
		return push.Report{}, nil
	}

	sctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	subject, err := a.subjects.Subject(sctx, subjectID)
	cancel()
	if err != nil {
		a.logger.Warn("load subject failed, using generic name", "subject_id", subjectID, "error", err)
		subject = care.Subject{ID: subjectID}
	}

	rctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	recipients, err := a.deps.Recipients.RecipientsFor(rctx, subjectID, care.ScopeCaregivers)
	cancel()
	if err != nil {
		return push.Report{}, fmt.Errorf("caregivers of %s: %w", subjectID, err)
	}

	report := a.deps.Notifier.Dispatch(ctx, build(subject), recipients)
	a.logger.Info("caregiver alert sent",
		"kind", kind,
		"subject_id", subjectID,
		"dispatch_id", report.DispatchID,
		"recipients", len(recipients),
		"sent", report.Sent(),
		"failed", report.Failed())
	return report, nil
}

func medicineTakenPayload(subject care.Subject, medicineID, medicineName string) push.Payload {
	name := subject.DisplayName()
	return push.Payload{
		Type:  push.TypeMedicine,
		Title: "Medicine taken",
		Body:  fmt.Sprintf("%s took %s.", name, medicineName),
		URL:   "/",
		Data: map[string]string{
			"url":          "/",
			"type":         push.TypeMedicine,
			"elderId":      subject.ID,
			"medicineId":   medicineID,
			"medicineName": medicineName,
		},
	}
}

func sosPayload(subject care.Subject, alert care.SOSAlert) push.Payload {
	name := subject.DisplayName()
	at := alert.Time.UTC().Format(time.RFC3339)

	params := url.Values{}
	params.Set("alertId", alert.ID)
	params.Set("elderId", subject.ID)
	params.Set("elderName", name)
	params.Set("time", at)

	data := map[string]string{
		"type":      push.TypeSOS,
		"alertId":   alert.ID,
		"elderId":   subject.ID,
		"elderName": name,
		"time":      at,
	}

	body := fmt.Sprintf("Time: %s. Tap to see details.", at)
	if alert.HasLocation() {
		lat := strconv.FormatFloat(*alert.Lat, 'f', -1, 64)
		lng := strconv.FormatFloat(*alert.Lng, 'f', -1, 64)
		params.Set("lat", lat)
		params.Set("lng", lng)
		data["lat"], data["lng"] = lat, lng
		body = fmt.Sprintf("Time: %s. Location: %s, %s. Tap to see map.", at, lat, lng)
	}

	link := "/sos-alert?" + params.Encode()
	data["url"] = link
	return push.Payload{
		Type:  push.TypeSOS,
		Title: fmt.Sprintf("SOS – %s needs help", name),
		Body:  body,
		URL:   link,
		Data:  data,
	}
}
